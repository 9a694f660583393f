package zip

import (
	"archive/zip"
	"bytes"
	"time"
)

// Asset is one file destined for an export archive.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchiveAssets builds an in-memory zip holding the assets in order. Assets
// without a filename are skipped; the MIME type rides along as the entry
// comment so inspection tools can tell videos from manifests.
func ArchiveAssets(assets []Asset) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	now := time.Now()
	for _, asset := range assets {
		if asset.Filename == "" {
			continue
		}
		header := &zip.FileHeader{
			Name:     asset.Filename,
			Method:   zip.Deflate,
			Modified: now,
			Comment:  asset.MIME,
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			continue
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
