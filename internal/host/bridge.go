package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Bridge talks to the DAW-side control bridge over HTTP. Every verb is
// one POST with a JSON body; the bridge replies with a JSON envelope
// carrying either a result or a status string.
//
// Bridge adds no retry or consistency logic of its own - that belongs
// to the engine's primitives, which know which reads are allowed to be
// stale.
type Bridge struct {
	baseURL string
	client  *http.Client
}

// NewBridge creates a client for the bridge at baseURL
// (e.g. "http://127.0.0.1:9100").
func NewBridge(baseURL string, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// envelope is the bridge's uniform response shape.
type envelope struct {
	Status string          `json:"status"` // "ok" | "no_object" | "gone" | "error"
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (b *Bridge) call(ctx context.Context, op string, req any, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/"+op, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	slog.Debug("host call", "op", op)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("host %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("host %s: read response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("host %s: status %d: %s", op, resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("host %s: decode envelope: %w", op, err)
	}

	switch env.Status {
	case "ok":
	case "no_object":
		return ErrNoObject
	case "gone":
		return ErrGone
	default:
		return fmt.Errorf("host %s: %s", op, env.Error)
	}

	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("host %s: decode result: %w", op, err)
		}
	}
	return nil
}

func (b *Bridge) GetClip(ctx context.Context, id ClipID) (ClipProps, error) {
	var props ClipProps
	err := b.call(ctx, "clip/get", map[string]any{"clip_id": id}, &props)
	return props, err
}

func (b *Bridge) SetClip(ctx context.Context, id ClipID, patch PropPatch) error {
	return b.call(ctx, "clip/set", map[string]any{"clip_id": id, "patch": patch}, nil)
}

func (b *Bridge) ArrangementClips(ctx context.Context, track TrackID) ([]ClipID, error) {
	var out struct {
		Clips []ClipID `json:"clips"`
	}
	err := b.call(ctx, "track/arrangement_clips", map[string]any{"track_index": track}, &out)
	return out.Clips, err
}

func (b *Bridge) DuplicateClipToArrangement(ctx context.Context, id ClipID, beat float64) (ClipID, error) {
	var out struct {
		ClipID ClipID `json:"clip_id"`
	}
	err := b.call(ctx, "clip/duplicate_to_arrangement", map[string]any{"clip_id": id, "beat": beat}, &out)
	return out.ClipID, err
}

func (b *Bridge) DuplicateClipToSession(ctx context.Context, id ClipID, slot int) (ClipID, error) {
	var out struct {
		ClipID ClipID `json:"clip_id"`
	}
	err := b.call(ctx, "clip/duplicate_to_session", map[string]any{"clip_id": id, "slot": slot}, &out)
	return out.ClipID, err
}

func (b *Bridge) CreateMIDIClip(ctx context.Context, track TrackID, beat, length float64) (ClipID, error) {
	var out struct {
		ClipID ClipID `json:"clip_id"`
	}
	err := b.call(ctx, "track/create_midi_clip", map[string]any{"track_index": track, "beat": beat, "length": length}, &out)
	return out.ClipID, err
}

func (b *Bridge) DeleteClip(ctx context.Context, id ClipID) error {
	err := b.call(ctx, "clip/delete", map[string]any{"clip_id": id}, nil)
	if errors.Is(err, ErrGone) {
		// Idempotent by contract.
		return nil
	}
	return err
}

var _ Host = (*Bridge)(nil)
