package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// ResultFile is the name of the per-scenario summary.
const ResultFile = "result.json"

type Parameter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Attachment struct {
	Name string `json:"name"`
	// File is relative to the case directory.
	File string `json:"file"`
	Type string `json:"type"`
}

type Step struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

type Failure struct {
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// Result is the document written to result.json.
type Result struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Status      Status       `json:"status"`
	Start       time.Time    `json:"start"`
	Stop        time.Time    `json:"stop,omitempty"`
	Steps       []Step       `json:"steps"`
	Parameters  []Parameter  `json:"parameters"`
	Attachments []Attachment `json:"attachments"`
	Failures    []Failure    `json:"failures,omitempty"`
}

// FileSink writes one scenario's artifacts under <root>/<uuid>/.
type FileSink struct {
	mu      sync.Mutex
	dir     string
	shooter Screenshotter
	logger  *zap.Logger
	seq     int
	result  Result
	closed  bool
}

var _ Sink = (*FileSink)(nil)

// NewFileSink creates the case directory. shooter may be nil, in which case
// screenshots are skipped.
func NewFileSink(root, name string, shooter Screenshotter, logger *zap.Logger) (*FileSink, error) {
	id := uuid.NewString()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	return &FileSink{
		dir:     dir,
		shooter: shooter,
		logger:  logger.Named("report").With(zap.String("case_id", id), zap.String("scenario", name)),
		result: Result{
			ID:          id,
			Name:        name,
			Start:       time.Now(),
			Steps:       []Step{},
			Parameters:  []Parameter{},
			Attachments: []Attachment{},
		},
	}, nil
}

// Dir is the case directory.
func (s *FileSink) Dir() string { return s.dir }

func (s *FileSink) ID() string { return s.result.ID }

// SetScreenshotter replaces the screenshot source, e.g. once a session exists.
func (s *FileSink) SetScreenshotter(sh Screenshotter) {
	s.mu.Lock()
	s.shooter = sh
	s.mu.Unlock()
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func fileSafe(name string) string {
	s := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if s == "" {
		return "artifact"
	}
	return s
}

// nextFile reserves a sequenced file name. Caller holds mu.
func (s *FileSink) nextFile(name, ext string) string {
	s.seq++
	return fmt.Sprintf("%02d_%s.%s", s.seq, fileSafe(name), ext)
}

func (s *FileSink) AttachScreenshot(ctx context.Context, name string) {
	s.mu.Lock()
	shooter := s.shooter
	s.mu.Unlock()
	if shooter == nil {
		s.logger.Debug("No screenshot source; skipping.", zap.String("name", name))
		return
	}
	png, err := shooter.Screenshot(ctx)
	if err != nil {
		s.logger.Warn("Failed to capture screenshot.", zap.String("name", name), zap.Error(err))
		return
	}
	s.attach(name, "png", "image/png", png)
}

func (s *FileSink) AttachText(name, content string) {
	s.attach(name, "txt", "text/plain", []byte(content))
}

func (s *FileSink) attach(name, ext, mime string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	file := s.nextFile(name, ext)
	if err := os.WriteFile(filepath.Join(s.dir, file), data, 0o644); err != nil {
		s.logger.Warn("Failed to write attachment.", zap.String("name", name), zap.Error(err))
		return
	}
	s.result.Attachments = append(s.result.Attachments, Attachment{Name: name, File: file, Type: mime})
	s.logger.Debug("Attachment saved.", zap.String("name", name), zap.String("file", file))
}

// AddParameter records a key/value; a repeated key overwrites the earlier value.
func (s *FileSink) AddParameter(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.result.Parameters {
		if s.result.Parameters[i].Key == key {
			s.result.Parameters[i].Value = value
			return
		}
	}
	s.result.Parameters = append(s.result.Parameters, Parameter{Key: key, Value: value})
}

func (s *FileSink) LogStep(msg string) {
	s.mu.Lock()
	s.result.Steps = append(s.result.Steps, Step{Time: time.Now(), Message: msg})
	s.mu.Unlock()
	s.logger.Info(msg)
}

func (s *FileSink) AddFailure(reason string, err error) {
	f := Failure{Reason: reason}
	if err != nil {
		f.Error = err.Error()
	}
	s.mu.Lock()
	s.result.Failures = append(s.result.Failures, f)
	s.mu.Unlock()
	s.logger.Error("Scenario failure recorded.", zap.String("reason", reason), zap.Error(err))
}

// Close stamps the final status and writes result.json. Later calls are no-ops.
func (s *FileSink) Close(status Status) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.result
	}
	s.closed = true
	s.result.Status = status
	s.result.Stop = time.Now()

	data, err := json.MarshalIndent(s.result, "", "  ")
	if err != nil {
		s.logger.Error("Failed to encode result.", zap.Error(err))
		return s.result
	}
	if err := os.WriteFile(filepath.Join(s.dir, ResultFile), data, 0o644); err != nil {
		s.logger.Error("Failed to write result.", zap.Error(err))
	}
	return s.result
}

// ReadResult loads a result.json written by Close.
func ReadResult(dir string) (Result, error) {
	var r Result
	data, err := os.ReadFile(filepath.Join(dir, ResultFile))
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("decoding %s: %w", ResultFile, err)
	}
	return r, nil
}
