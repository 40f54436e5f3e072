package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"quizdesk_backend/internal/model"
	"quizdesk_backend/internal/util"
	"quizdesk_backend/pkg/logger"
	"quizdesk_backend/pkg/monitoring"
	"sync"
	"time"

	"go.uber.org/zap"
)

// blobUploader is the slice of the storage service the adapter needs.
type blobUploader interface {
	UploadFile(ctx context.Context, filename string, localPath string, contentType string) (string, error)
}

// UploadResolution is the second phase of a two-phase capture result: the
// durable URL once the upload completes, or the error that left the local
// preview as the only reference for the rest of the session.
type UploadResolution struct {
	SessionID  string
	QuestionID string
	LocalRef   string
	DurableURL string
	Info       *util.AudioInfo
	Err        error
}

// levelSample is one per-chunk amplitude reading inside the rolling window.
type levelSample struct {
	at    time.Time
	level int
}

// CaptureHandle is one open audio capture. A session owns at most one;
// starting a new capture tears down the previous handle.
type CaptureHandle struct {
	ID         string
	SessionID  string
	QuestionID string
	DeviceID   string
	MimeType   string

	mu      sync.Mutex
	file    *os.File
	path    string
	window  time.Duration
	samples []levelSample
	written int64
	stopped bool
}

// Append writes an audio chunk and records its amplitude in the rolling
// window. The level is meaningful for 16-bit PCM streams; for anything else
// it degrades to noise, which is acceptable for a feedback-only meter.
func (h *CaptureHandle) Append(chunk []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.file == nil {
		return util.ErrCaptureNotActive
	}
	n, err := h.file.Write(chunk)
	h.written += int64(n)
	if err != nil {
		return err
	}
	now := time.Now()
	h.samples = append(h.samples, levelSample{at: now, level: util.PCMAmplitude(chunk)})
	h.pruneLocked(now)
	return nil
}

func (h *CaptureHandle) pruneLocked(now time.Time) {
	cutoff := now.Add(-h.window)
	i := 0
	for i < len(h.samples) && h.samples[i].at.Before(cutoff) {
		i++
	}
	h.samples = h.samples[i:]
}

// Level returns the amplitude averaged over the rolling window, 0-100.
// Feedback only, no correctness dependency.
func (h *CaptureHandle) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneLocked(time.Now())
	if len(h.samples) == 0 {
		return 0
	}
	sum := 0
	for _, s := range h.samples {
		sum += s.level
	}
	return sum / len(h.samples)
}

func (h *CaptureHandle) close() {
	if h.file != nil {
		h.file.Close()
		h.file = nil
	}
	h.stopped = true
}

// CaptureService wraps local audio-input acquisition for live sessions. It
// produces a locally playable preview the moment a capture stops and a
// durable blob-storage reference asynchronously.
type CaptureService struct {
	mu       sync.Mutex
	handles  map[string]*CaptureHandle // keyed by session id
	uploader blobUploader
	dir      string
	window   time.Duration // rolling amplitude window

	// injectable for tests
	openFile func(path string) (*os.File, error)
	probe    func(path string) (*util.AudioInfo, error)
}

func NewCaptureService(uploader blobUploader, captureDir string, amplitudeWindow time.Duration) *CaptureService {
	if amplitudeWindow <= 0 {
		amplitudeWindow = 200 * time.Millisecond
	}
	return &CaptureService{
		handles:  make(map[string]*CaptureHandle),
		uploader: uploader,
		dir:      captureDir,
		window:   amplitudeWindow,
		openFile: func(path string) (*os.File, error) {
			return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		},
		probe: util.ProbeAudio,
	}
}

// Begin acquires the capture input for a session. ErrDeviceUnavailable is
// returned when the input cannot be opened; the caller surfaces it and the
// flow continues without a recording, no automatic retry. Any previous
// handle for the session is discarded first, releasing its resource.
func (s *CaptureService) Begin(sessionID, questionID, deviceID, mimeType string) (*CaptureHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.handles[sessionID]; ok {
		s.discardLocked(prev)
	}

	if mimeType == "" {
		mimeType = "audio/wav"
	}

	id := model.GenerateUUID()
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s.raw", sessionID, id))
	f, err := s.openFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrDeviceUnavailable, err)
	}

	h := &CaptureHandle{
		ID:         id,
		SessionID:  sessionID,
		QuestionID: questionID,
		DeviceID:   deviceID,
		MimeType:   mimeType,
		file:       f,
		path:       path,
		window:     s.window,
	}
	s.handles[sessionID] = h
	return h, nil
}

func (s *CaptureService) Handle(sessionID string) (*CaptureHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[sessionID]
	if !ok {
		return nil, util.ErrCaptureNotActive
	}
	return h, nil
}

// Stop closes the capture and synchronously returns a locally playable
// reference with no network dependency. The durable upload runs in the
// background and is delivered through resolve; on failure the local
// reference stays the answer's only value and the flush layer retries by
// exclusion, never dropping it silently.
func (s *CaptureService) Stop(sessionID string, resolve func(UploadResolution)) (string, error) {
	s.mu.Lock()
	h, ok := s.handles[sessionID]
	if ok {
		delete(s.handles, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return "", util.ErrCaptureNotActive
	}

	h.mu.Lock()
	h.close()
	path := h.path
	h.mu.Unlock()

	localRef := "/captures/" + filepath.Base(path)

	info, err := s.probe(path)
	if err != nil {
		info = nil
	}

	go func() {
		objectName := fmt.Sprintf("recordings/%s/%s%s", h.SessionID, h.ID, filepath.Ext(path))
		url, err := s.uploader.UploadFile(context.Background(), objectName, path, h.MimeType)
		res := UploadResolution{
			SessionID:  h.SessionID,
			QuestionID: h.QuestionID,
			LocalRef:   localRef,
			Info:       info,
		}
		if err != nil {
			res.Err = fmt.Errorf("%w: %v", util.ErrUploadFailure, err)
			monitoring.CaptureCounter.WithLabelValues("upload_failed").Inc()
			logger.Log.Warn("capture upload failed",
				zap.String("sessionId", h.SessionID),
				zap.String("questionId", h.QuestionID),
				zap.Error(err),
			)
		} else {
			res.DurableURL = url
			monitoring.CaptureCounter.WithLabelValues("uploaded").Inc()
		}
		if resolve != nil {
			resolve(res)
		}
	}()

	return localRef, nil
}

// Discard tears down a capture without uploading, e.g. when the learner
// navigates away mid-capture or re-records.
func (s *CaptureService) Discard(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[sessionID]; ok {
		s.discardLocked(h)
		delete(s.handles, sessionID)
	}
}

func (s *CaptureService) discardLocked(h *CaptureHandle) {
	h.mu.Lock()
	h.close()
	path := h.path
	h.mu.Unlock()
	if path != "" {
		os.Remove(path)
	}
	monitoring.CaptureCounter.WithLabelValues("discarded").Inc()
}
