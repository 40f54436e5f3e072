package util

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// AudioInfo 存储音频信息
type AudioInfo struct {
	Duration float64 `json:"duration"` // seconds
	Format   string  `json:"format"`
	Size     int64   `json:"size"`
}

// ProbeAudio 使用ffmpeg-go获取音频元数据
func ProbeAudio(audioPath string) (*AudioInfo, error) {
	fileInfo, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("audio file not found: %v", err)
	}

	jsonOutput, err := ffmpeg.Probe(audioPath)
	if err != nil {
		return nil, fmt.Errorf("probe failed: %v", err)
	}

	var result struct {
		Format struct {
			Duration string `json:"duration"`
			Size     string `json:"size"`
			Format   string `json:"format_name"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return nil, fmt.Errorf("parse probe output: %v", err)
	}

	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		duration = 0
	}

	size, err := strconv.ParseInt(result.Format.Size, 10, 64)
	if err != nil {
		size = fileInfo.Size()
	}

	format := "unknown"
	if len(result.Format.Format) > 0 {
		formatParts := strings.Split(result.Format.Format, ",")
		if len(formatParts) > 0 {
			format = formatParts[0]
		}
	}

	return &AudioInfo{
		Duration: duration,
		Format:   format,
		Size:     size,
	}, nil
}

// PCMAmplitude computes a 0-100 level from little-endian 16-bit PCM samples.
// Feedback only; odd trailing bytes are ignored.
func PCMAmplitude(chunk []byte) int {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(chunk[i*2 : i*2+2]))
		f := float64(s) / 32768.0
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(n))

	level := int(math.Round(rms * 100 * math.Sqrt2))
	if level > 100 {
		level = 100
	}
	return level
}
