// Package archive extracts mmpack binary package archives (.mpk files:
// tar, optionally gzip- or xz-compressed), grounded on apk/manager.go's
// extractAPKPackage and, for xz support, pkg/nix's use of
// github.com/ulikunitz/xz.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
)

// MetadataPrefix is the in-archive directory holding the package's own
// metadata (info file, sum-file, post-install scripts) rather than files
// destined for the prefix tree.
const MetadataPrefix = "MMPACK/"

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// openCompressed auto-detects the archive's compression by magic bytes and
// returns a plain tar stream.
func openCompressed(r io.Reader) (io.Reader, error) {
	br := make([]byte, 6)
	n, err := io.ReadFull(r, br)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	head := br[:n]
	rest := io.MultiReader(bytes.NewReader(head), r)

	switch {
	case len(head) >= 2 && bytes.Equal(head[:2], gzipMagic):
		gz, err := gzip.NewReader(rest)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return gz, nil
	case len(head) >= 6 && bytes.Equal(head, xzMagic):
		xzr, err := xz.NewReader(rest)
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
		return xzr, nil
	default:
		return rest, nil
	}
}

// Logger is satisfied by *log.Logger; archive extraction logs per-entry
// progress through it the way extractAPKPackage does, discarded by default.
type Logger interface {
	Printf(format string, v ...interface{})
}

var discardLogger Logger = log.New(io.Discard, "", 0)

// Extract streams an archive (tar, tar.gz or tar.xz, auto-detected) from r
// into destDir, skipping MMPACK/* metadata entries, the Go equivalent of
// extractAPKPackage generalized to mmpack's three supported encodings.
func Extract(r io.Reader, destDir string, logger Logger) error {
	if logger == nil {
		logger = discardLogger
	}

	tarStream, err := openCompressed(r)
	if err != nil {
		return mmerrors.New("archive.Extract", mmerrors.BadFormat, "", err)
	}

	tr := tar.NewReader(tarStream)
	fileCount, dirCount, symlinkCount := 0, 0, 0

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return mmerrors.New("archive.Extract", mmerrors.BadFormat, "", fmt.Errorf("reading tar entry: %w", err))
		}

		name := strings.TrimPrefix(header.Name, "./")
		if strings.HasPrefix(name, MetadataPrefix) {
			logger.Printf("  skipping metadata: %s", name)
			continue
		}

		targetPath := filepath.Join(destDir, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return mmerrors.New("archive.Extract", mmerrors.IO, "", fmt.Errorf("creating directory %s: %w", targetPath, err))
			}
			dirCount++

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return mmerrors.New("archive.Extract", mmerrors.IO, "", fmt.Errorf("creating parent directory for symlink: %w", err))
			}
			os.Remove(targetPath)
			if err := os.Symlink(header.Linkname, targetPath); err != nil {
				return mmerrors.New("archive.Extract", mmerrors.IO, "", fmt.Errorf("creating symlink %s -> %s: %w", targetPath, header.Linkname, err))
			}
			symlinkCount++

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return mmerrors.New("archive.Extract", mmerrors.IO, "", fmt.Errorf("creating parent directory: %w", err))
			}

			outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return mmerrors.New("archive.Extract", mmerrors.IO, "", fmt.Errorf("creating file %s: %w", targetPath, err))
			}

			written, err := io.Copy(outFile, tr)
			outFile.Close()
			if err != nil {
				return mmerrors.New("archive.Extract", mmerrors.IO, "", fmt.Errorf("writing file %s: %w", targetPath, err))
			}
			if written != header.Size {
				return mmerrors.New("archive.Extract", mmerrors.BadFormat, "", fmt.Errorf("size mismatch for %s: expected %d, got %d", targetPath, header.Size, written))
			}
			fileCount++

		default:
			logger.Printf("  skipping unsupported entry type %v for %s", header.Typeflag, name)
		}
	}

	logger.Printf("extraction complete: %d files, %d directories, %d symlinks", fileCount, dirCount, symlinkCount)
	return nil
}

// ExtractNumbered streams an archive's non-metadata, non-directory entries
// into destDir, each named after its rank of appearance ("0", "1", ...)
// rather than its real path, the Go equivalent of fschange_unpack_mpk.
// Directories are skipped entirely: the caller creates the real target
// directories itself once every entry's final path is known (mirroring the
// original's comment that "the directories are not extracted during
// initial tar extraction, hence must be created [later] if not existing
// yet"). Returns, in archive order, the scratch path of every extracted
// entry and its corresponding final (prefix-relative) path.
func ExtractNumbered(r io.Reader, destDir string, metadataPrefix string) (scratchPaths, finalPaths []string, err error) {
	tarStream, err := openCompressed(r)
	if err != nil {
		return nil, nil, mmerrors.New("archive.ExtractNumbered", mmerrors.BadFormat, "", err)
	}

	tr := tar.NewReader(tarStream)
	count := 0

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, mmerrors.New("archive.ExtractNumbered", mmerrors.BadFormat, "", fmt.Errorf("reading tar entry: %w", err))
		}

		name := strings.TrimPrefix(header.Name, "./")
		if name == "" || strings.HasPrefix(name, metadataPrefix) {
			continue
		}
		if header.Typeflag == tar.TypeDir {
			continue
		}

		scratchPath := filepath.Join(destDir, fmt.Sprintf("%d", count))
		count++

		switch header.Typeflag {
		case tar.TypeSymlink:
			os.Remove(scratchPath)
			if err := os.Symlink(header.Linkname, scratchPath); err != nil {
				return nil, nil, mmerrors.New("archive.ExtractNumbered", mmerrors.IO, "", fmt.Errorf("creating symlink %s: %w", scratchPath, err))
			}
		case tar.TypeReg:
			outFile, err := os.OpenFile(scratchPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return nil, nil, mmerrors.New("archive.ExtractNumbered", mmerrors.IO, "", fmt.Errorf("creating scratch file %s: %w", scratchPath, err))
			}
			written, err := io.Copy(outFile, tr)
			outFile.Close()
			if err != nil {
				return nil, nil, mmerrors.New("archive.ExtractNumbered", mmerrors.IO, "", fmt.Errorf("writing scratch file %s: %w", scratchPath, err))
			}
			if written != header.Size {
				return nil, nil, mmerrors.New("archive.ExtractNumbered", mmerrors.BadFormat, "", fmt.Errorf("size mismatch for %s: expected %d, got %d", name, header.Size, written))
			}
		default:
			continue
		}

		scratchPaths = append(scratchPaths, scratchPath)
		finalPaths = append(finalPaths, name)
	}

	return scratchPaths, finalPaths, nil
}

// ReadMetadataFile reads a single MMPACK/<name> entry out of an archive
// without extracting the rest, used to load a package's info file before
// deciding whether to unpack it.
func ReadMetadataFile(r io.Reader, name string) ([]byte, error) {
	tarStream, err := openCompressed(r)
	if err != nil {
		return nil, mmerrors.New("archive.ReadMetadataFile", mmerrors.BadFormat, "", err)
	}

	tr := tar.NewReader(tarStream)
	want := MetadataPrefix + name
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil, mmerrors.New("archive.ReadMetadataFile", mmerrors.NotFound, "", fmt.Errorf("%s not found in archive", want))
		}
		if err != nil {
			return nil, mmerrors.New("archive.ReadMetadataFile", mmerrors.BadFormat, "", err)
		}
		if strings.TrimPrefix(header.Name, "./") == want {
			return io.ReadAll(tr)
		}
	}
}
