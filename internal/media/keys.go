package media

import (
	"encoding/hex"
	"strconv"

	"github.com/minio/highwayhash"
)

// assetKeySeed fixes the key derivation so the same media and purpose
// always map to the same storage key.
var assetKeySeed = [32]byte{
	0x70, 0x68, 0x6f, 0x74, 0x6f, 0x2d, 0x6c, 0x69,
	0x62, 0x72, 0x61, 0x72, 0x79, 0x2f, 0x61, 0x73,
	0x73, 0x65, 0x74, 0x2d, 0x6b, 0x65, 0x79, 0x73,
	0x2f, 0x76, 0x31, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// AssetKey returns the storage key of a derived asset. Media are identified
// by owner and source path since derived assets are produced before the
// catalog assigns an id.
func AssetKey(ownerID int64, sourcePath, purpose, ext string) string {
	h, _ := highwayhash.New128(assetKeySeed[:])
	_, _ = h.Write([]byte(strconv.FormatInt(ownerID, 10)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(sourcePath))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(purpose))

	sum := hex.EncodeToString(h.Sum(nil))
	return sum[0:2] + "/" + sum[2:4] + "/" + sum + "-" + purpose + ext
}
