package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/safelog/internal/common"
	"github.com/dmitrijs2005/safelog/internal/dbx"
	"github.com/dmitrijs2005/safelog/internal/server/access"
	"github.com/dmitrijs2005/safelog/internal/server/blobstore"
	"github.com/dmitrijs2005/safelog/internal/server/models"
)

// ChunkUpload is one encrypted slice of a file secret. EncryptedData is the
// hex ciphertext as produced by the client.
type ChunkUpload struct {
	SecretID      int64
	Index         int
	IV            string
	EncryptedData string
}

// ChunkData is a stored chunk together with its ciphertext.
type ChunkData struct {
	models.Chunk
	EncryptedData string
}

type ChunkService struct {
	Deps
	engine *access.Engine
	blobs  blobstore.Store
	limits Limits
}

func NewChunkService(d Deps, engine *access.Engine, blobs blobstore.Store, limits Limits) *ChunkService {
	return &ChunkService{Deps: d.withModule("chunks"), engine: engine, blobs: blobs, limits: limits}
}

// cipherSize is the decoded size of hex ciphertext.
func cipherSize(hexData string) int64 {
	return int64(len(hexData)+1) / 2
}

// Upload stores a chunk of caller's secret. Re-uploading an index replaces
// it. The summed size of all chunks may not exceed the file limit.
func (s *ChunkService) Upload(ctx context.Context, caller string, in ChunkUpload) (*models.Chunk, error) {
	if in.Index < 0 {
		return nil, fmt.Errorf("%w: negative chunk index", common.ErrValidation)
	}
	if in.EncryptedData == "" {
		return nil, fmt.Errorf("%w: empty chunk", common.ErrValidation)
	}
	if err := s.limits.checkPayload("encrypted_data", in.EncryptedData); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	chunk := &models.Chunk{
		SecretID:   in.SecretID,
		Index:      in.Index,
		IV:         in.IV,
		StorageKey: blobstore.NewKey(now, in.SecretID, in.Index),
		Size:       cipherSize(in.EncryptedData),
		CreatedAt:  now,
	}
	if s.limits.MaxFile > 0 && chunk.Size > s.limits.MaxFile {
		return nil, fmt.Errorf("%w: file too large", common.ErrPayloadTooLarge)
	}

	var (
		replaced string
		written  bool
	)
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		sec, err := s.Repos.Secrets(tx).Get(ctx, in.SecretID)
		if err != nil {
			return fmt.Errorf("secret: %w", err)
		}
		if !s.engine.CanMutate(sec, caller) {
			return common.ErrForbidden
		}

		repo := s.Repos.Chunks(tx)
		others, err := repo.TotalSize(ctx, in.SecretID, in.Index)
		if err != nil {
			return err
		}
		if s.limits.MaxFile > 0 && others+chunk.Size > s.limits.MaxFile {
			return fmt.Errorf("%w: file too large", common.ErrPayloadTooLarge)
		}

		old, err := repo.Get(ctx, in.SecretID, in.Index)
		switch {
		case err == nil:
			replaced = old.StorageKey
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		// The blob goes first so a committed row never points at nothing.
		if err := s.blobs.Put(ctx, chunk.StorageKey, []byte(in.EncryptedData)); err != nil {
			return err
		}
		written = true
		return repo.Upsert(ctx, chunk)
	})
	if err != nil {
		if written {
			s.dropBlob(ctx, chunk.StorageKey)
		}
		return nil, err
	}

	if replaced != "" {
		s.dropBlob(ctx, replaced)
	}
	return chunk, nil
}

// List returns every chunk of a readable secret, ordered by index.
func (s *ChunkService) List(ctx context.Context, caller string, secretID int64) ([]ChunkData, error) {
	var meta []models.Chunk
	if err := s.readable(ctx, caller, secretID, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		meta, err = s.Repos.Chunks(tx).List(ctx, secretID)
		return err
	}); err != nil {
		return nil, err
	}

	out := make([]ChunkData, 0, len(meta))
	for _, c := range meta {
		data, err := s.blobs.Get(ctx, c.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c.Index, err)
		}
		out = append(out, ChunkData{Chunk: c, EncryptedData: string(data)})
	}
	return out, nil
}

// Get returns one chunk of a readable secret.
func (s *ChunkService) Get(ctx context.Context, caller string, secretID int64, index int) (*ChunkData, error) {
	var meta *models.Chunk
	if err := s.readable(ctx, caller, secretID, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		meta, err = s.Repos.Chunks(tx).Get(ctx, secretID, index)
		if err != nil {
			return fmt.Errorf("chunk: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	data, err := s.blobs.Get(ctx, meta.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	return &ChunkData{Chunk: *meta, EncryptedData: string(data)}, nil
}

// readable runs fn after checking caller may read secretID. Denials still
// commit so expired grants stay purged.
func (s *ChunkService) readable(ctx context.Context, caller string, secretID int64, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	var denied bool
	err := s.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		r := access.ReposFor(s.Repos, tx)
		if _, err := r.Secrets.Get(ctx, secretID); err != nil {
			return fmt.Errorf("secret: %w", err)
		}
		ok, err := s.engine.CanRead(ctx, r, secretID, caller)
		if err != nil {
			return err
		}
		if !ok {
			denied = true
			return nil
		}
		return fn(ctx, tx)
	})
	if err != nil {
		return err
	}
	if denied {
		return common.ErrForbidden
	}
	return nil
}

func (s *ChunkService) dropBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.Log.Warn(ctx, "failed to delete chunk blob", "key", key, "error", err)
	}
}
