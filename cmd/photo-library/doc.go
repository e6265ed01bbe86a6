// Command photo-library indexes photo and video libraries and serves the
// catalog over HTTP.
//
// Usage:
//
//	photo-library [--config file] <command>
//
// Commands:
//
//	serve           Run the HTTP API, the scan orchestrator and the periodic scanner.
//	scan            Scan the root paths of one user and exit.
//	user add        Create a user.
//	user add-root   Register a directory as a root path of a user.
//	share create    Create a share token for an album or a media file.
//	version         Print build information.
//
// Every configuration key can be overridden with a PHOTOLIB_ environment
// variable, e.g. PHOTOLIB_HTTP_PORT=9000 or PHOTOLIB_DATABASE_PATH.
package main
