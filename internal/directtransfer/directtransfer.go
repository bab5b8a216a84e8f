// Package directtransfer implements the Direct Transfer broker of §4.11:
// a sender uploads a file addressed to a recipient username, the
// recipient downloads it at most once, and the payload disappears
// whichever comes first — delivery, explicit dismissal, or expiry.
//
// Grounded on original_source/app/direct_transfer.py's DirectTransferStore;
// adapted from asyncio+a single lock to a sync.Mutex, and from FastAPI's
// UploadFile streaming to io.Reader/os.File.
package directtransfer

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chfs/chfs/internal/chfserr"
)

// State is the lifecycle stage of one transfer, per §4.11's state machine.
// Entries are only ever persisted while Pending; every other state is
// reached by removing the entry (and, for Delivered/Cancelled/Dismissed,
// deleting the payload) rather than recording a terminal state on disk.
type State string

const (
	StatePending   State = "PENDING"
	StateDelivered State = "DELIVERED"
	StateCancelled State = "CANCELLED"
	StateDismissed State = "DISMISSED"
	StateExpired   State = "EXPIRED"
)

// Entry describes one pending transfer's metadata.
type Entry struct {
	ID             string `json:"id"`
	Sender         string `json:"sender"`
	Recipient      string `json:"recipient"`
	Filename       string `json:"filename"`
	StoredFilename string `json:"stored_filename"`
	Size           int64  `json:"size"`
	ContentType    string `json:"content_type"`
	CreatedAt      int64  `json:"created_at"` // unix seconds
	ExpiresAt      int64  `json:"expires_at"` // unix seconds, 0 means no expiry
}

func (e Entry) expired(now time.Time) bool {
	return e.ExpiresAt != 0 && e.ExpiresAt <= now.Unix()
}

// Public is the API-facing projection of an Entry (§4.9's direct-transfer
// routes), omitting the internal stored filename.
type Public struct {
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	CreatedAt   int64  `json:"createdAt"`
	ExpiresAt   int64  `json:"expiresAt,omitempty"`
	DownloadURL string `json:"downloadUrl"`
}

func (e Entry) toPublic() Public {
	var expires int64
	if e.ExpiresAt != 0 {
		expires = e.ExpiresAt
	}
	return Public{
		ID:          e.ID,
		Sender:      e.Sender,
		Recipient:   e.Recipient,
		Filename:    e.Filename,
		Size:        e.Size,
		ContentType: e.ContentType,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   expires,
		DownloadURL: "/api/direct-transfer/download/" + e.ID,
	}
}

type metaFile struct {
	Transfers []Entry `json:"transfers"`
}

// Store persists pending transfer metadata under baseDir/transfers.json and
// each payload as baseDir/<id><ext>.
type Store struct {
	mu       sync.Mutex
	baseDir  string
	metaPath string
	entries  map[string]Entry
}

// New opens (or creates) the store rooted at baseDir, pruning any entries
// whose payload has gone missing or expired since the last run.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		baseDir:  baseDir,
		metaPath: filepath.Join(baseDir, "transfers.json"),
		entries:  map[string]Entry{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.pruneLocked()
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var mf metaFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil // corrupt metadata is treated as empty, matching the Python loader's defensive catch
	}
	for _, e := range mf.Transfers {
		if _, err := os.Stat(filepath.Join(s.baseDir, e.StoredFilename)); err != nil {
			continue
		}
		s.entries[e.ID] = e
	}
	return nil
}

func (s *Store) saveLocked() error {
	mf := metaFile{Transfers: make([]Entry, 0, len(s.entries))}
	for _, e := range s.entries {
		mf.Transfers = append(mf.Transfers, e)
	}
	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.metaPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.metaPath)
}

// pruneLocked removes expired or orphaned entries and deletes their
// payloads; caller must hold s.mu.
func (s *Store) pruneLocked() {
	now := time.Now()
	removed := false
	for id, e := range s.entries {
		missing := false
		if !e.expired(now) {
			if _, err := os.Stat(filepath.Join(s.baseDir, e.StoredFilename)); err != nil {
				missing = true
			}
		}
		if e.expired(now) || missing {
			delete(s.entries, id)
			s.deleteFile(e.StoredFilename)
			removed = true
		}
	}
	if removed {
		_ = s.saveLocked()
	}
}

func (s *Store) deleteFile(name string) {
	_ = os.Remove(filepath.Join(s.baseDir, name))
}

func generateShortID(n int) string {
	buf := make([]byte, (n+1)/2)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)[:n]
}

// allocateLocked picks a collision-free (id, stored filename) pair, trying
// up to 64 random ids per §4.11 before giving up.
func (s *Store) allocateLocked(originalFilename string) (id, storedFilename string, err error) {
	ext := filepath.Ext(originalFilename)
	if ext == "" {
		ext = ".bin"
	}
	for i := 0; i < 64; i++ {
		candidate := generateShortID(12)
		name := candidate + ext
		if _, exists := s.entries[candidate]; exists {
			continue
		}
		if _, statErr := os.Stat(filepath.Join(s.baseDir, name)); statErr == nil {
			continue
		}
		return candidate, name, nil
	}
	return "", "", chfserr.New(chfserr.KindInternal, "unable to allocate a transfer identifier")
}

// Create streams r into a new transfer payload addressed from sender to
// recipient, enforcing maxSize while writing (aborting and cleaning up the
// partial file on overflow), and persists the resulting metadata.
func (s *Store) Create(sender, recipient, filename, contentType string, r io.Reader, maxSize int64, expiresIn time.Duration) (Entry, error) {
	if filename == "" {
		filename = "transfer"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	tmpName := "tmp-" + generateShortID(10)
	tmpPath := filepath.Join(s.baseDir, tmpName)

	size, err := s.writeCapped(tmpPath, r, maxSize)
	if err != nil {
		_ = os.Remove(tmpPath)
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	id, storedFilename, err := s.allocateLocked(filename)
	if err != nil {
		_ = os.Remove(tmpPath)
		return Entry{}, err
	}

	finalPath := filepath.Join(s.baseDir, storedFilename)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return Entry{}, err
	}

	now := time.Now()
	var expiresAt int64
	if expiresIn > 0 {
		expiresAt = now.Add(expiresIn).Unix()
	}

	entry := Entry{
		ID:             id,
		Sender:         sender,
		Recipient:      recipient,
		Filename:       filename,
		StoredFilename: storedFilename,
		Size:           size,
		ContentType:    contentType,
		CreatedAt:      now.Unix(),
		ExpiresAt:      expiresAt,
	}
	s.entries[id] = entry
	if err := s.saveLocked(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (s *Store) writeCapped(path string, r io.Reader, maxSize int64) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var written int64
	buf := make([]byte, 64*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			written += int64(n)
			if maxSize > 0 && written > maxSize {
				return 0, chfserr.New(chfserr.KindPayloadTooLarge, fmt.Sprintf("file too large (max %d bytes)", maxSize))
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return 0, werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, rerr
		}
	}
	return written, nil
}

// Direction selects which half of a user's transfers List returns.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// List returns username's pending transfers in the given direction, newest
// first.
func (s *Store) List(username string, dir Direction) ([]Public, error) {
	if dir != DirectionIncoming && dir != DirectionOutgoing {
		return nil, chfserr.New(chfserr.KindBadRequest, "invalid transfer direction")
	}

	s.mu.Lock()
	s.pruneLocked()
	out := make([]Public, 0, len(s.entries))
	for _, e := range s.entries {
		if (dir == DirectionIncoming && e.Recipient == username) ||
			(dir == DirectionOutgoing && e.Sender == username) {
			out = append(out, e.toPublic())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// PrepareDownload validates that username is the recipient of transferID,
// removes the metadata entry (so a concurrent second download sees it as
// gone — at-most-once delivery) and returns the payload path for the
// caller to stream and then finalize with FinishDownload.
func (s *Store) PrepareDownload(transferID, username string) (Entry, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	entry, ok := s.entries[transferID]
	if !ok {
		return Entry{}, "", chfserr.New(chfserr.KindNotFound, "transfer not found")
	}
	if entry.Recipient != username {
		return Entry{}, "", chfserr.New(chfserr.KindForbidden, "you do not have access to this transfer")
	}

	path := filepath.Join(s.baseDir, entry.StoredFilename)
	if _, err := os.Stat(path); err != nil {
		delete(s.entries, transferID)
		_ = s.saveLocked()
		return Entry{}, "", chfserr.New(chfserr.KindNotFound, "transfer payload is no longer available")
	}

	delete(s.entries, transferID)
	_ = s.saveLocked()
	return entry, path, nil
}

// FinishDownload deletes the payload after it has been streamed to the
// recipient, completing the PENDING -> DELIVERED transition.
func (s *Store) FinishDownload(entry Entry) {
	s.mu.Lock()
	s.deleteFile(entry.StoredFilename)
	s.mu.Unlock()
}

// Delete removes a pending transfer without delivering it (sender
// cancellation or recipient dismissal), the PENDING -> CANCELLED/DISMISSED
// transition.
func (s *Store) Delete(transferID, username string) (Entry, error) {
	s.mu.Lock()
	s.pruneLocked()
	entry, ok := s.entries[transferID]
	if !ok {
		s.mu.Unlock()
		return Entry{}, chfserr.New(chfserr.KindNotFound, "transfer not found")
	}
	if username != entry.Sender && username != entry.Recipient {
		s.mu.Unlock()
		return Entry{}, chfserr.New(chfserr.KindForbidden, "you do not have access to this transfer")
	}
	delete(s.entries, transferID)
	_ = s.saveLocked()
	s.deleteFile(entry.StoredFilename)
	s.mu.Unlock()
	return entry, nil
}
