package prover

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vocdoni/zkdao/config"
	"github.com/vocdoni/zkdao/log"
	"github.com/vocdoni/zkdao/types"
)

// CheckHashes determines whether artifact contents are checked against their
// pinned sha256 when loaded or downloaded. It can be disabled by setting the
// ZKDAO_CHECK_HASHES environment variable to false or 0.
var CheckHashes = true

// BaseDir is the local artifact cache. Artifacts not found there are
// downloaded and stored under their hash. Defaults to the ZKDAO_ARTIFACTS_DIR
// environment variable or the user cache directory.
var BaseDir string

func init() {
	if v := os.Getenv("ZKDAO_CHECK_HASHES"); v != "" {
		if strings.ToLower(v) == "false" || v == "0" {
			CheckHashes = false
		}
	}
	if dir := os.Getenv("ZKDAO_ARTIFACTS_DIR"); dir != "" {
		BaseDir = dir
	} else {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			log.Warnf("unable to access user home directory, using temporary directory: %v", err)
			BaseDir = filepath.Join(os.TempDir(), "zkdao-artifacts")
		} else {
			BaseDir = filepath.Join(home, ".cache", "zkdao-artifacts")
		}
	}
	if err := os.MkdirAll(BaseDir, 0o755); err != nil {
		log.Errorf("failed to create artifact cache dir %s: %v", BaseDir, err)
	}
}

// Artifacts is the membership circuit artifact bundle the client proves
// with. The relay only needs the verification key part.
var Artifacts = NewCircuitArtifacts(
	&Artifact{
		RemoteURL: config.MembershipCircuitURL,
		Hash:      types.HexStringToHexBytes(config.MembershipCircuitHash),
	},
	&Artifact{
		RemoteURL: config.MembershipProvingKeyURL,
		Hash:      types.HexStringToHexBytes(config.MembershipProvingKeyHash),
	},
	&Artifact{
		RemoteURL: config.MembershipVerificationKeyURL,
		Hash:      types.HexStringToHexBytes(config.MembershipVerificationKeyHash),
	})

// Artifact is a remote file pinned by the sha256 of its content. Load fills
// Content from the local cache; Download fetches it from RemoteURL, checks
// the hash and stores it in the cache.
type Artifact struct {
	RemoteURL string
	Hash      []byte
	Content   []byte
}

// Load fills the artifact content from the local cache. It is a no-op if the
// content is already set. Returns an error if the hash is not set, the cached
// file is corrupt, or nothing is cached under the hash.
func (a *Artifact) Load() error {
	if len(a.Content) != 0 {
		return nil
	}
	if len(a.Hash) == 0 {
		return fmt.Errorf("artifact hash not provided")
	}
	content, err := loadCached(a.Hash)
	if err != nil {
		return err
	}
	if content == nil {
		return fmt.Errorf("artifact not found in cache")
	}
	a.Content = content
	return nil
}

// Download fetches the artifact from its remote URL, checks the hash and
// stores it in the local cache. The content must still be picked up with a
// subsequent Load.
func (a *Artifact) Download(ctx context.Context) error {
	if a.RemoteURL == "" {
		return fmt.Errorf("artifact not cached and no remote url provided")
	}
	return downloadAndStore(ctx, a.Hash, a.RemoteURL)
}

// CircuitArtifacts bundles the three artifacts of the membership circuit:
// the compiled wasm witness calculator, the groth16 proving key (zkey) and
// the snarkjs verification key (json).
type CircuitArtifacts struct {
	circuit      *Artifact
	provingKey   *Artifact
	verifyingKey *Artifact
}

// NewCircuitArtifacts creates a CircuitArtifacts bundle. Any of the three
// artifacts may be nil when a caller only needs a subset (the relay, for
// instance, only holds the verification key).
func NewCircuitArtifacts(circuit, provingKey, verifyingKey *Artifact) *CircuitArtifacts {
	return &CircuitArtifacts{
		circuit:      circuit,
		provingKey:   provingKey,
		verifyingKey: verifyingKey,
	}
}

// EnsureLoaded loads every artifact of the bundle from the local cache,
// downloading the ones that are missing. After a nil return, the non-nil
// artifacts have their content in memory.
func (ca *CircuitArtifacts) EnsureLoaded(ctx context.Context) error {
	for name, a := range map[string]*Artifact{
		"circuit":      ca.circuit,
		"provingKey":   ca.provingKey,
		"verifyingKey": ca.verifyingKey,
	} {
		if a == nil {
			continue
		}
		if err := a.Load(); err == nil {
			continue
		}
		log.Infow("downloading circuit artifact", "artifact", name, "url", a.RemoteURL)
		if err := a.Download(ctx); err != nil {
			return fmt.Errorf("error downloading %s: %w", name, err)
		}
		if err := a.Load(); err != nil {
			return fmt.Errorf("error loading %s: %w", name, err)
		}
	}
	return nil
}

// Circuit returns the wasm circuit content, nil if not loaded.
func (ca *CircuitArtifacts) Circuit() types.HexBytes {
	if ca.circuit == nil {
		return nil
	}
	return ca.circuit.Content
}

// ProvingKey returns the proving key content, nil if not loaded.
func (ca *CircuitArtifacts) ProvingKey() types.HexBytes {
	if ca.provingKey == nil {
		return nil
	}
	return ca.provingKey.Content
}

// VerifyingKey returns the verification key content, nil if not loaded.
func (ca *CircuitArtifacts) VerifyingKey() types.HexBytes {
	if ca.verifyingKey == nil {
		return nil
	}
	return ca.verifyingKey.Content
}

// loadCached reads the cache file named after the hash. A missing file is
// (nil, nil), a hash mismatch is an error.
func loadCached(hash []byte) ([]byte, error) {
	path := filepath.Join(BaseDir, hex.EncodeToString(hash))
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading cache file %s: %w", path, err)
	}
	if CheckHashes {
		sum := sha256.Sum256(content)
		if !bytes.Equal(sum[:], hash) {
			return nil, fmt.Errorf("hash mismatch for cached file %s: expected %x, got %x", path, hash, sum)
		}
	}
	return content, nil
}

// downloadAndStore fetches a file, hashes it while writing to a temporary
// file and renames it into the cache once the hash checks out.
func downloadAndStore(ctx context.Context, expectedHash []byte, fileURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("error creating the artifact request: %w", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error performing the artifact request: %w", err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Warnf("error closing response body: %v", err)
		}
	}()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("error downloading %s: http status %d", fileURL, res.StatusCode)
	}

	path := filepath.Join(BaseDir, hex.EncodeToString(expectedHash))
	partialPath := path + ".partial"
	fd, err := os.OpenFile(partialPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("error opening artifact file: %w", err)
	}
	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(fd, hasher), res.Body); err != nil {
		_ = fd.Close()
		return fmt.Errorf("error writing artifact file: %w", err)
	}
	if err := fd.Close(); err != nil {
		return fmt.Errorf("error closing artifact file: %w", err)
	}
	if CheckHashes {
		if sum := hasher.Sum(nil); !bytes.Equal(sum, expectedHash) {
			_ = os.Remove(partialPath)
			return fmt.Errorf("hash mismatch: expected %x, got %x", expectedHash, sum)
		}
	}
	if err := os.Rename(partialPath, path); err != nil {
		return fmt.Errorf("error renaming artifact file: %w", err)
	}
	return nil
}
