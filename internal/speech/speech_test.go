package speech

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

type chanSource chan []byte

func (c chanSource) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case b, ok := <-c:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	}
}

func TestRotatingSourceExpires(t *testing.T) {
	src := make(chanSource, 1)
	src <- []byte{1}

	r := NewRotatingSource(src, 50*time.Millisecond)
	if b, err := r.Next(context.Background()); err != nil || len(b) != 1 {
		t.Fatalf("Next() = %v, %v", b, err)
	}

	// nothing queued: the read has to give up at the deadline
	start := time.Now()
	_, err := r.Next(context.Background())
	if !errors.Is(err, ErrStreamExpired) {
		t.Fatalf("Next() = %v, want ErrStreamExpired", err)
	}
	if time.Since(start) > time.Second {
		t.Error("expiry took too long")
	}

	// audio queued after expiry stays in the source for the next stream
	src <- []byte{2}
	if _, err := r.Next(context.Background()); !errors.Is(err, ErrStreamExpired) {
		t.Fatalf("Next() after expiry = %v", err)
	}
	if len(src) != 1 {
		t.Error("expired source consumed audio")
	}
}

func TestRotatingSourceWithoutLimit(t *testing.T) {
	src := make(chanSource)
	close(src)
	r := NewRotatingSource(src, 0)
	if _, err := r.Next(context.Background()); err != io.EOF {
		t.Fatalf("Next() = %v, want io.EOF", err)
	}
}

func TestRotatingSourceKeepsCallerCancellation(t *testing.T) {
	r := NewRotatingSource(make(chanSource), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Next() = %v, want context.Canceled", err)
	}
}

func TestIsEndOfStream(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{io.EOF, true},
		{ErrStreamExpired, true},
		{context.Canceled, false},
		{errors.New("boom"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsEndOfStream(tt.err); got != tt.want {
			t.Errorf("IsEndOfStream(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
