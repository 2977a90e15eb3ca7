package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/wav"
	"github.com/ledongthuc/pdf"
	"github.com/tcolgate/mp3"
	"go.uber.org/zap"

	"alfredoptarigan/report-console/internal/models"
)

const (
	DefaultAudioProbeTimeout = 8 * time.Second
	DefaultAudioMaxSize      = 200 << 20
	DefaultAudioMaxDuration  = 2 * time.Hour
)

// ErrProberUnavailable is returned when no decoder can read the container.
var ErrProberUnavailable = errors.New("no duration prober available")

// LocalFile is a file selected on the local machine.
type LocalFile struct {
	Name string
	Path string
	Size int64
}

// StatLocalFile describes the file at path, using its base name as Name.
func StatLocalFile(path string) (LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return LocalFile{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return LocalFile{}, fmt.Errorf("not a regular file: %s", path)
	}
	return LocalFile{Name: filepath.Base(path), Path: path, Size: info.Size()}, nil
}

func (f LocalFile) Ext() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

// MediaHandle is the transient handle a prober decodes from.
type MediaHandle interface {
	io.ReadSeeker
	io.Closer
	Name() string
}

// DurationProber measures the playable duration of one family of containers.
type DurationProber interface {
	Probe(ctx context.Context, media MediaHandle) (time.Duration, error)
}

type ValidatorOptions struct {
	ProbeTimeout time.Duration
	MaxSize      int64
	MaxDuration  time.Duration
	FFProbePath  string
	// Probers overrides the per-extension decoders.
	Probers map[string]DurationProber
	// Open overrides how the transient media handle is acquired.
	Open func(path string) (MediaHandle, error)
}

// UploadNotice is the advisory message shown after an upload lands in a slot.
type UploadNotice struct {
	Level   models.NotificationLevel
	Message string
	Detail  string
}

type ArtifactValidator interface {
	// ValidateAudio never fails; every problem is reported in the result.
	ValidateAudio(ctx context.Context, file LocalFile) models.ValidationResult
	ValidatePDF(ctx context.Context, file LocalFile) models.ValidationResult
	// Validate runs the richer check that fits the slot, or returns nil.
	Validate(ctx context.Context, slot models.SlotName, file LocalFile) *models.ValidationResult
	CheckAudioUpload(file LocalFile) UploadNotice
}

type artifactValidator struct {
	timeout     time.Duration
	maxSize     int64
	maxDuration time.Duration
	probers     map[string]DurationProber
	open        func(path string) (MediaHandle, error)
	logger      *zap.Logger
}

func NewArtifactValidator(opts ValidatorOptions, logger *zap.Logger) ArtifactValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &artifactValidator{
		timeout:     opts.ProbeTimeout,
		maxSize:     opts.MaxSize,
		maxDuration: opts.MaxDuration,
		probers:     opts.Probers,
		open:        opts.Open,
		logger:      logger,
	}
	if v.timeout <= 0 {
		v.timeout = DefaultAudioProbeTimeout
	}
	if v.maxSize <= 0 {
		v.maxSize = DefaultAudioMaxSize
	}
	if v.maxDuration <= 0 {
		v.maxDuration = DefaultAudioMaxDuration
	}
	if v.probers == nil {
		v.probers = DefaultProbers(opts.FFProbePath)
	}
	if v.open == nil {
		v.open = func(path string) (MediaHandle, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			return f, nil
		}
	}
	return v
}

// DefaultProbers decodes WAV and MP3 natively and hands the remaining audio
// containers to ffprobe.
func DefaultProbers(ffprobePath string) map[string]DurationProber {
	ffprobe := &FFProbeProber{Path: ffprobePath}
	return map[string]DurationProber{
		".wav":  WAVProber{},
		".mp3":  MP3Prober{},
		".m4a":  ffprobe,
		".aac":  ffprobe,
		".ogg":  ffprobe,
		".flac": ffprobe,
	}
}

type probeOutcome struct {
	duration time.Duration
	err      error
}

func (v *artifactValidator) ValidateAudio(ctx context.Context, file LocalFile) models.ValidationResult {
	if file.Size <= 0 {
		return models.Invalid("文件为空或无效")
	}
	if file.Size > v.maxSize {
		return models.Invalid(fmt.Sprintf("音频文件过大，请选择小于%dMB的文件", v.maxSize>>20))
	}

	prober, ok := v.probers[file.Ext()]
	if !ok {
		return models.Invalid("音频文件格式不支持或文件损坏")
	}

	handle, err := v.open(file.Path)
	if err != nil {
		return models.Invalid("无法创建音频对象，文件可能损坏: " + err.Error())
	}
	release := sync.OnceFunc(func() {
		if err := handle.Close(); err != nil {
			v.logger.Warn("failed to release audio handle", zap.String("file", file.Name), zap.Error(err))
		}
	})
	defer release()

	mimeType := sniffMIME(handle)

	probeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	// Buffered so a probe finishing after the timeout does not block.
	done := make(chan probeOutcome, 1)
	go func() {
		duration, err := prober.Probe(probeCtx, handle)
		done <- probeOutcome{duration: duration, err: err}
	}()

	var outcome probeOutcome
	select {
	case <-probeCtx.Done():
	case outcome = <-done:
	}

	// A probe that returned because its context ended counts as cut off.
	if probeCtx.Err() != nil && (outcome.err != nil || outcome.duration == 0) {
		release()
		if ctx.Err() != nil {
			return models.Invalid("音频文件加载被中断")
		}
		v.logger.Warn("audio probe timed out", zap.String("file", file.Name), zap.Duration("timeout", v.timeout))
		return models.Invalid("音频文件验证超时，可能文件过大或格式有问题")
	}

	if outcome.err != nil {
		v.logger.Debug("audio probe failed", zap.String("file", file.Name), zap.Error(outcome.err))
		return models.Invalid("音频文件格式不支持或文件损坏")
	}

	seconds := outcome.duration.Seconds()
	if seconds <= 0 {
		return models.Invalid("音频文件损坏或无效")
	}
	if outcome.duration >= v.maxDuration {
		return models.Invalid(fmt.Sprintf("音频文件过长，请选择小于%s的录音", humanHours(v.maxDuration)))
	}

	return models.ValidationResult{
		Valid:    true,
		Duration: seconds,
		Size:     file.Size,
		MIMEType: mimeType,
		Message: fmt.Sprintf("音频文件有效 - 时长: %d分%d秒, 大小: %.2fMB",
			int(seconds)/60, int(seconds)%60, float64(file.Size)/1024/1024),
	}
}

func humanHours(d time.Duration) string {
	if d%time.Hour == 0 {
		return strconv.Itoa(int(d/time.Hour)) + "小时"
	}
	return strconv.Itoa(int(d/time.Minute)) + "分钟"
}

func sniffMIME(handle MediaHandle) string {
	detected, err := mimetype.DetectReader(handle)
	if _, seekErr := handle.Seek(0, io.SeekStart); seekErr != nil || err != nil {
		return ""
	}
	return detected.String()
}

func (v *artifactValidator) ValidatePDF(ctx context.Context, file LocalFile) models.ValidationResult {
	if file.Size <= 0 {
		return models.Invalid("文件为空或无效")
	}
	if err := ctx.Err(); err != nil {
		return models.Invalid("PDF文件检查被中断")
	}

	f, r, err := pdf.Open(file.Path)
	if err != nil {
		return models.Invalid("PDF文件无法解析: " + err.Error())
	}
	defer f.Close()

	pages := r.NumPage()
	if pages == 0 {
		return models.Invalid("PDF文件没有页面")
	}

	hasText := false
	for pageIndex := 1; pageIndex <= pages && !hasText; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		hasText = strings.TrimSpace(text) != ""
	}

	result := models.ValidationResult{
		Valid:    hasText,
		Size:     file.Size,
		Pages:    pages,
		MIMEType: "application/pdf",
		Message:  fmt.Sprintf("PDF文件有效 - 共%d页", pages),
	}
	if !hasText {
		result.Message = fmt.Sprintf("PDF文件共%d页，但未找到可提取的文本内容", pages)
	}
	return result
}

func (v *artifactValidator) Validate(ctx context.Context, slot models.SlotName, file LocalFile) *models.ValidationResult {
	var result models.ValidationResult
	switch {
	case slot == models.SlotAudio:
		result = v.ValidateAudio(ctx, file)
	case file.Ext() == ".pdf":
		result = v.ValidatePDF(ctx, file)
	default:
		return nil
	}
	return &result
}

var audioUploadExtensions = []string{".mp3", ".wav", ".m4a", ".aac", ".ogg", ".flac"}

// CheckAudioUpload is the extension and size heuristic applied to audio
// uploads. It never blocks an upload.
func (v *artifactValidator) CheckAudioUpload(file LocalFile) UploadNotice {
	ext := file.Ext()
	isAudio := false
	for _, candidate := range audioUploadExtensions {
		if ext == candidate {
			isAudio = true
			break
		}
	}
	sizeMB := fmt.Sprintf("%.2f", float64(file.Size)/1024/1024)

	switch {
	case isAudio && file.Size > 0 && file.Size < v.maxSize:
		return UploadNotice{
			Level:   models.LevelSuccess,
			Message: "录音文件上传成功，将在诊断时自动转换为文本",
			Detail:  fmt.Sprintf("音频文件格式: %s, 大小: %sMB", strings.ToUpper(ext), sizeMB),
		}
	case !isAudio:
		return UploadNotice{
			Level:   models.LevelWarning,
			Message: "音频文件格式可能不支持",
			Detail:  "建议使用 MP3、WAV、M4A 等常见音频格式",
		}
	case file.Size >= v.maxSize:
		return UploadNotice{
			Level:   models.LevelWarning,
			Message: "音频文件过大，建议压缩后重新上传",
			Detail:  fmt.Sprintf("文件大小: %sMB，建议小于%dMB", sizeMB, v.maxSize>>20),
		}
	}
	return UploadNotice{Level: models.LevelInfo, Message: "文件上传成功", Detail: "文件已保存，可继续使用"}
}

// WAVProber reads the duration from the RIFF header.
type WAVProber struct{}

func (WAVProber) Probe(ctx context.Context, media MediaHandle) (time.Duration, error) {
	decoder := wav.NewDecoder(media)
	if !decoder.IsValidFile() {
		return 0, errors.New("invalid wav file")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return decoder.Duration()
}

// MP3Prober sums frame durations, so VBR files are measured correctly.
type MP3Prober struct{}

func (MP3Prober) Probe(ctx context.Context, media MediaHandle) (time.Duration, error) {
	decoder := mp3.NewDecoder(media)

	var (
		frame   mp3.Frame
		skipped int
		total   time.Duration
		frames  int
	)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, fmt.Errorf("failed to decode mp3 frame: %w", err)
		}
		total += frame.Duration()
		frames++
	}
	if frames == 0 {
		return 0, errors.New("no mp3 frames found")
	}
	return total, nil
}

// FFProbeProber shells out to ffprobe for containers without a native
// decoder.
type FFProbeProber struct {
	Path string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *FFProbeProber) Probe(ctx context.Context, media MediaHandle) (time.Duration, error) {
	binary := p.Path
	if binary == "" {
		binary = "ffprobe"
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProberUnavailable, err)
	}
	if strings.TrimSpace(media.Name()) == "" {
		return 0, errors.New("media path is required")
	}

	cmd := exec.CommandContext(ctx, resolved,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		media.Name(),
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to run ffprobe: %w", err)
	}
	return parseFFProbeDuration(output)
}

func parseFFProbeDuration(payload []byte) (time.Duration, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(payload, &out); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if out.Format.Duration == "" {
		return 0, errors.New("ffprobe reported no duration")
	}
	seconds, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ffprobe duration %q: %w", out.Format.Duration, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
