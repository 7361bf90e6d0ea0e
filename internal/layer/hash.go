package layer

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"os"
)

// contentHash digests the lock file and the build recipe. Missing files
// are skipped so the hash still depends on the recipe.
func contentHash(recipe string, paths ...string) (string, error) {
	h := md5.New()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
	}
	_, _ = io.WriteString(h, recipe)
	return hex.EncodeToString(h.Sum(nil)), nil
}
