// Package storage implements the Storage Gateway of §4.4: safe listing,
// mkdir, rename, delete, streamed upload with a size cap, and ranged
// download, all mediated by internal/pathsafe and internal/quota.
//
// Keeps the "narrow interface over the local disk" idea of a plain
// Driver{Put,Get,List}, widened to the full operation set below and
// wired directly to a concrete share root rather than a single flat
// key-value namespace.
package storage

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/chfs/chfs/internal/chfserr"
	"github.com/chfs/chfs/internal/model"
	"github.com/chfs/chfs/internal/pathsafe"
	"github.com/chfs/chfs/internal/quota"
)

const downloadChunkSize = 64 * 1024

// ChunkSize is the maximum chunk size streamed per read, per §4.4.
const ChunkSize = downloadChunkSize

// Gateway resolves share names to roots and performs filesystem operations
// against them, enforcing path safety and quota on every mutation.
type Gateway struct {
	shares map[string]model.Share
	quota  *quota.Manager
}

// NewGateway builds a Gateway over the given shares.
func NewGateway(shares []model.Share, q *quota.Manager) *Gateway {
	m := make(map[string]model.Share, len(shares))
	for _, s := range shares {
		m[s.Name] = s
	}
	return &Gateway{shares: m, quota: q}
}

// SetShares atomically replaces the share set, used on config reload.
func (g *Gateway) SetShares(shares []model.Share) {
	m := make(map[string]model.Share, len(shares))
	for _, s := range shares {
		m[s.Name] = s
	}
	g.shares = m
}

// Share returns the configured share by name.
func (g *Gateway) Share(name string) (model.Share, bool) {
	s, ok := g.shares[name]
	return s, ok
}

func (g *Gateway) resolve(shareName, rel string) (model.Share, string, error) {
	share, ok := g.shares[shareName]
	if !ok {
		return model.Share{}, "", chfserr.New(chfserr.KindNotFound, "unknown share")
	}
	abs, err := pathsafe.Resolve(share.Path, rel)
	if err != nil {
		return share, "", chfserr.New(chfserr.KindPathTraversal, "path escapes share root")
	}
	return share, abs, nil
}

// List returns the directory entries of rel within share, directories
// first then case-insensitive name order, per §3.
func (g *Gateway) List(shareName, rel string) ([]model.FileInfo, error) {
	share, abs, err := g.resolve(shareName, rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, chfserr.New(chfserr.KindNotFound, "directory not found")
		}
		return nil, chfserr.New(chfserr.KindBadPath, err.Error())
	}
	if !info.IsDir() {
		return nil, chfserr.New(chfserr.KindNotDir, "not a directory")
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, chfserr.New(chfserr.KindBadPath, err.Error())
	}

	out := make([]model.FileInfo, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			continue
		}
		childAbs := filepath.Join(abs, e.Name())
		childRel, _ := pathsafe.Rel(share.Path, childAbs)
		out = append(out, model.FileInfo{
			Name:     e.Name(),
			Path:     childRel,
			Size:     fi.Size(),
			IsDir:    e.IsDir(),
			Modified: fi.ModTime().Unix(),
			MimeType: mimeType(e.Name(), e.IsDir()),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})

	return out, nil
}

// Mkdir creates rel within share. Errors: EXISTS, PARENT_MISSING, BAD_PATH.
func (g *Gateway) Mkdir(shareName, rel string) error {
	_, abs, err := g.resolve(shareName, rel)
	if err != nil {
		return err
	}

	if _, err := os.Stat(abs); err == nil {
		return chfserr.New(chfserr.KindConflict, "already exists")
	}

	parent := filepath.Dir(abs)
	if _, err := os.Stat(parent); os.IsNotExist(err) {
		return chfserr.New(chfserr.KindParentMissing, "parent directory missing")
	}

	if err := os.Mkdir(abs, 0o755); err != nil {
		return chfserr.New(chfserr.KindBadPath, err.Error())
	}
	return nil
}

// Rename renames the entry at rel to newName within the same parent
// directory. newName must pass filename validation; the target must not
// already exist.
func (g *Gateway) Rename(shareName, rel, newName string) error {
	share, abs, err := g.resolve(shareName, rel)
	if err != nil {
		return err
	}
	if err := ValidateFilename(newName); err != nil {
		return err
	}

	if _, err := os.Stat(abs); err != nil {
		return chfserr.New(chfserr.KindNotFound, "source not found")
	}

	newAbs := filepath.Join(filepath.Dir(abs), newName)
	if !withinShare(share.Path, newAbs) {
		return chfserr.New(chfserr.KindPathTraversal, "rename target escapes share root")
	}
	if _, err := os.Stat(newAbs); err == nil {
		return chfserr.New(chfserr.KindConflict, "target already exists")
	}

	if err := os.Rename(abs, newAbs); err != nil {
		return chfserr.New(chfserr.KindBadPath, err.Error())
	}
	g.quota.Invalidate(shareName)
	return nil
}

// Delete removes rel within share, recursively if it is a directory.
func (g *Gateway) Delete(shareName, rel string) error {
	_, abs, err := g.resolve(shareName, rel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return chfserr.New(chfserr.KindNotFound, "not found")
	}
	if err := os.RemoveAll(abs); err != nil {
		return chfserr.New(chfserr.KindBadPath, err.Error())
	}
	g.quota.Invalidate(shareName)
	return nil
}

// Upload streams r into rel/filename, honoring maxSize (0 means
// unlimited) and the share's quota. declaredLength is the client-supplied
// content length (0 if unknown); when the share has a quota and the
// client declared a length, the quota is checked against
// cached_usage+declaredLength before any bytes are written, per §4.5.
// Creates missing parent directories. On any failure after bytes start
// landing on disk, the partial file is deleted.
func (g *Gateway) Upload(shareName, rel, filename string, r io.Reader, maxSize, declaredLength int64) (int64, error) {
	share, dirAbs, err := g.resolve(shareName, rel)
	if err != nil {
		return 0, err
	}
	if err := ValidateFilename(filename); err != nil {
		return 0, err
	}

	targetAbs := filepath.Join(dirAbs, filename)
	if !withinShare(share.Path, targetAbs) {
		return 0, chfserr.New(chfserr.KindPathTraversal, "upload target escapes share root")
	}
	if _, err := os.Stat(targetAbs); err == nil {
		return 0, chfserr.New(chfserr.KindConflict, "target already exists")
	}

	if share.HasQuota() && declaredLength > 0 {
		usage, err := g.quota.GetUsage(shareName, share.Path, false)
		if err == nil {
			if qerr := g.quota.EnsureWithin(shareName, share.QuotaBytes, usage+declaredLength); qerr != nil {
				return 0, chfserr.New(chfserr.KindQuotaExceeded, qerr.Error())
			}
		}
	}

	if err := os.MkdirAll(dirAbs, 0o755); err != nil {
		return 0, chfserr.New(chfserr.KindBadPath, err.Error())
	}

	f, err := os.Create(targetAbs)
	if err != nil {
		return 0, chfserr.New(chfserr.KindBadPath, err.Error())
	}

	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			written += int64(n)
			if maxSize > 0 && written > maxSize {
				f.Close()
				os.Remove(targetAbs)
				return 0, chfserr.New(chfserr.KindPayloadTooLarge, "upload exceeds maximum size")
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				os.Remove(targetAbs)
				return 0, chfserr.New(chfserr.KindInternal, werr.Error())
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			os.Remove(targetAbs)
			return 0, chfserr.New(chfserr.KindInternal, rerr.Error())
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(targetAbs)
		return 0, chfserr.New(chfserr.KindInternal, err.Error())
	}

	if share.HasQuota() {
		// A forced walk counts the bytes just written whether or not a
		// cached figure existed, and leaves the cache current.
		usage, err := g.quota.GetUsage(shareName, share.Path, true)
		if err == nil {
			if qerr := g.quota.EnsureWithin(shareName, share.QuotaBytes, usage); qerr != nil {
				os.Remove(targetAbs)
				g.quota.Invalidate(shareName)
				return 0, chfserr.New(chfserr.KindQuotaExceeded, qerr.Error())
			}
			return written, nil
		}
	}
	g.quota.AddDelta(shareName, written)

	return written, nil
}

// Download resolves rel to an absolute path and opens it for ranged
// reading. It returns the open file positioned at start, along with
// (start, end, total); callers must Close the returned file.
func (g *Gateway) Download(shareName, rel string, rng *model.HTTPRange) (f *os.File, start, end, total int64, err error) {
	_, abs, rerr := g.resolve(shareName, rel)
	if rerr != nil {
		return nil, 0, 0, 0, rerr
	}

	info, serr := os.Stat(abs)
	if serr != nil {
		return nil, 0, 0, 0, chfserr.New(chfserr.KindNotFound, "file not found")
	}
	if info.IsDir() {
		return nil, 0, 0, 0, chfserr.New(chfserr.KindNotDir, "is a directory")
	}

	total = info.Size()
	if rng != nil {
		start, end = rng.Resolve(total)
	} else {
		start, end = 0, total-1
	}

	file, oerr := os.Open(abs)
	if oerr != nil {
		return nil, 0, 0, 0, chfserr.New(chfserr.KindBadPath, oerr.Error())
	}
	if start > 0 {
		if _, serr := file.Seek(start, io.SeekStart); serr != nil {
			file.Close()
			return nil, 0, 0, 0, chfserr.New(chfserr.KindInternal, serr.Error())
		}
	}

	return file, start, end, total, nil
}

func withinShare(root, candidate string) bool {
	root = filepath.Clean(root)
	candidate = filepath.Clean(candidate)
	return candidate == root || strings.HasPrefix(candidate, root+string(filepath.Separator))
}

var invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// ValidateFilename rejects empty, ".", "..", path separators, reserved
// glyphs, and control characters, per §4.4.
func ValidateFilename(name string) error {
	if name == "" || name == "." || name == ".." {
		return chfserr.New(chfserr.KindBadRequest, "invalid filename")
	}
	if invalidNameChars.MatchString(name) {
		return chfserr.New(chfserr.KindBadRequest, "filename contains reserved characters")
	}
	if controlChars.MatchString(name) {
		return chfserr.New(chfserr.KindBadRequest, "filename contains control characters")
	}
	return nil
}

// SanitizeFilename replaces offending glyphs with "_", trims trailing
// spaces/dots, truncates to 255 bytes preserving the extension, and
// substitutes "unnamed" for an empty result. Ported from utils.py's
// sanitize_filename.
func SanitizeFilename(name string) string {
	name = invalidNameChars.ReplaceAllString(name, "_")
	name = controlChars.ReplaceAllString(name, "")
	name = strings.TrimRight(name, " .")
	if name == "" {
		return "unnamed"
	}
	if len(name) > 255 {
		ext := filepath.Ext(name)
		base := name[:len(name)-len(ext)]
		keep := 255 - len(ext)
		if keep < 0 {
			keep = 0
		}
		if keep < len(base) {
			base = base[:keep]
		}
		name = base + ext
	}
	return name
}

var mimeTypes = map[string]string{
	".txt": "text/plain", ".html": "text/html", ".htm": "text/html",
	".css": "text/css", ".js": "application/javascript", ".json": "application/json",
	".pdf": "application/pdf", ".zip": "application/zip",
	".png": "image/png", ".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".gif": "image/gif",
	".svg": "image/svg+xml", ".mp4": "video/mp4", ".mp3": "audio/mpeg",
}

const defaultMimeType = "application/octet-stream"

func mimeType(name string, isDir bool) string {
	if isDir {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := mimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultMimeType
}

// ContentDisposition builds an RFC 5987-compliant header value for name.
func ContentDisposition(name string) string {
	return fmt.Sprintf(`attachment; filename*=UTF-8''%s`, path.Base(urlPathEscape(name)))
}

func urlPathEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || strings.ContainsRune("-_.~", r) {
			b.WriteRune(r)
		} else {
			b.WriteString("%")
			b.WriteString(strings.ToUpper(strconv.FormatInt(int64(r), 16)))
		}
	}
	return b.String()
}
