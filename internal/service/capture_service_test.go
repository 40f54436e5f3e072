package service

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"quizdesk_backend/internal/util"
	"testing"
	"time"
)

type fakeUploader struct {
	url string
	err error
}

func (f *fakeUploader) UploadFile(ctx context.Context, filename, localPath, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func newTestCapture(t *testing.T, uploader blobUploader) *CaptureService {
	t.Helper()
	s := NewCaptureService(uploader, t.TempDir(), 40*time.Millisecond)
	s.probe = func(path string) (*util.AudioInfo, error) {
		return &util.AudioInfo{Duration: 1.5, Format: "wav"}, nil
	}
	return s
}

func TestBeginDeviceUnavailable(t *testing.T) {
	s := newTestCapture(t, &fakeUploader{url: "https://blob/x"})
	s.openFile = func(path string) (*os.File, error) {
		return nil, errors.New("device busy")
	}

	_, err := s.Begin("sess-1", "q1", "mic-0", "audio/wav")
	if !errors.Is(err, util.ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
	if _, err := s.Handle("sess-1"); !errors.Is(err, util.ErrCaptureNotActive) {
		t.Fatal("failed begin must not leave a handle behind")
	}
}

func TestStopReturnsLocalRefEvenWhenUploadFails(t *testing.T) {
	s := newTestCapture(t, &fakeUploader{err: errors.New("blob store down")})

	if _, err := s.Begin("sess-1", "q1", "mic-0", "audio/wav"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	h, _ := s.Handle("sess-1")
	if err := h.Append([]byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("append: %v", err)
	}

	resolved := make(chan UploadResolution, 1)
	localRef, err := s.Stop("sess-1", func(res UploadResolution) { resolved <- res })
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if localRef == "" {
		t.Fatal("stop must return a playable local reference synchronously")
	}

	select {
	case res := <-resolved:
		if !errors.Is(res.Err, util.ErrUploadFailure) {
			t.Fatalf("resolution err = %v, want ErrUploadFailure", res.Err)
		}
		if res.LocalRef != localRef {
			t.Fatal("resolution must carry the same local reference")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upload resolution never delivered")
	}
}

func TestStopDeliversDurableURL(t *testing.T) {
	s := newTestCapture(t, &fakeUploader{url: "https://blob/rec.webm"})

	if _, err := s.Begin("sess-1", "q1", "", ""); err != nil {
		t.Fatalf("begin: %v", err)
	}

	resolved := make(chan UploadResolution, 1)
	if _, err := s.Stop("sess-1", func(res UploadResolution) { resolved <- res }); err != nil {
		t.Fatalf("stop: %v", err)
	}

	select {
	case res := <-resolved:
		if res.Err != nil {
			t.Fatalf("resolution err = %v", res.Err)
		}
		if res.DurableURL != "https://blob/rec.webm" {
			t.Fatalf("durable url = %q", res.DurableURL)
		}
		if res.Info == nil || res.Info.Duration != 1.5 {
			t.Fatalf("probe info not attached: %+v", res.Info)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upload resolution never delivered")
	}
}

func TestReBeginDiscardsPreviousHandle(t *testing.T) {
	s := newTestCapture(t, &fakeUploader{url: "https://blob/x"})

	first, err := s.Begin("sess-1", "q1", "", "audio/wav")
	if err != nil {
		t.Fatalf("first begin: %v", err)
	}
	second, err := s.Begin("sess-1", "q1", "", "audio/wav")
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("re-begin must produce a fresh handle")
	}

	if err := first.Append([]byte{1}); !errors.Is(err, util.ErrCaptureNotActive) {
		t.Fatal("discarded handle must reject writes")
	}

	h, err := s.Handle("sess-1")
	if err != nil || h.ID != second.ID {
		t.Fatalf("active handle = %v, err = %v", h, err)
	}
}

func TestStopWithoutCapture(t *testing.T) {
	s := newTestCapture(t, &fakeUploader{url: "x"})
	if _, err := s.Stop("nope", nil); !errors.Is(err, util.ErrCaptureNotActive) {
		t.Fatalf("err = %v, want ErrCaptureNotActive", err)
	}
}

func TestAmplitudeLevelRollingWindow(t *testing.T) {
	s := newTestCapture(t, &fakeUploader{url: "x"})
	h, err := s.Begin("sess-1", "q1", "", "audio/wav")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	silence := make([]byte, 64)
	if err := h.Append(silence); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := h.Level(); got != 0 {
		t.Fatalf("silence level = %d, want 0", got)
	}

	loud := make([]byte, 64)
	for i := 0; i < len(loud); i += 2 {
		binary.LittleEndian.PutUint16(loud[i:], uint16(int16(30000)))
	}
	if err := h.Append(loud); err != nil {
		t.Fatalf("append: %v", err)
	}

	// the window still holds the silent chunk, so the level averages down
	mixed := h.Level()
	if mixed <= 25 || mixed > 75 {
		t.Fatalf("mixed level = %d, want the silence to drag the average", mixed)
	}

	// let the silent chunk fall out of the 40ms window
	time.Sleep(60 * time.Millisecond)
	if err := h.Append(loud); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := h.Level(); got <= 50 {
		t.Fatalf("loud level = %d, want > 50 once old samples expired", got)
	}
}
