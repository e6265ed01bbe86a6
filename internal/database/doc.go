// Package database is the persisted media catalog: users, root paths,
// albums, media with their EXIF, video metadata and derived assets, face
// groups, share tokens and the scanner settings.
//
// The catalog is a SQLite database accessed through sqlx. The schema is
// owned by the migrations subpackage and applied on [New]. Writes that must
// be atomic go through [Database.WithTx]; read methods are available on both
// [Database] and [Tx].
//
// Missing files and directories are tombstoned rather than deleted: their
// deleted_at column is set and they are hidden from listings, so share
// tokens keep pointing at something that resolves to a Gone error.
package database
