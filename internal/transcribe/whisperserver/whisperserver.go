// Package whisperserver provides a whisper.cpp-backed transcribe.Transcriber.
//
// It connects to a running whisper-server binary (which exposes a REST API
// at POST /inference) and submits each journal recording as one batch
// inference request. Speech duration is estimated locally with an
// energy-based detector so the acoustic analyzer can weight voiced segments
// without a second round trip.
//
// Usage:
//
//	tr, err := whisperserver.New("http://localhost:8080",
//	    whisperserver.WithLanguage("de"),
//	)
//	res, err := tr.Transcribe(ctx, wavBytes)
package whisperserver

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/echolotlabs/echolot/internal/transcribe"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// audio that whisper.cpp expects.
	bitsPerSample = 16

	// rmsThreshold is the root-mean-square energy level (in 16-bit PCM
	// units) below which a window is considered silent. The maximum possible
	// value for 16-bit audio is 32 767; 300 corresponds to near-silence.
	rmsThreshold = 300.0

	// windowMs is the analysis window for the speech detector.
	windowMs = 20

	defaultLanguage = "auto"
	defaultTimeout  = 60 * time.Second
)

// Compile-time assertion that Client implements transcribe.Transcriber.
var _ transcribe.Transcriber = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de"). Defaults to "auto", letting the server detect it.
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// WithTimeout sets the HTTP timeout for one inference request. Journal
// recordings can run several minutes, so the default is a generous 60 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// Client implements transcribe.Transcriber backed by a whisper.cpp HTTP
// server. It is stateless between calls and safe for concurrent use.
type Client struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Client that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("whisperserver: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transcribe submits wav to the whisper.cpp /inference endpoint as
// multipart/form-data and returns the transcript together with the
// locally measured speech and total durations.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (transcribe.Result, error) {
	format, pcm, err := parseWAV(wav)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisperserver: %w", err)
	}

	res := transcribe.Result{
		Total:  pcmDuration(len(pcm), format),
		Speech: speechDuration(pcm, format),
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return res, fmt.Errorf("whisperserver: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return res, fmt.Errorf("whisperserver: write wav data: %w", err)
	}
	if c.language != "" {
		if err := mw.WriteField("language", c.language); err != nil {
			return res, fmt.Errorf("whisperserver: write language field: %w", err)
		}
	}
	if c.model != "" {
		if err := mw.WriteField("model", c.model); err != nil {
			return res, fmt.Errorf("whisperserver: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return res, fmt.Errorf("whisperserver: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/inference", &body)
	if err != nil {
		return res, fmt.Errorf("whisperserver: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return res, fmt.Errorf("whisperserver: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("whisperserver: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return res, fmt.Errorf("whisperserver: read response body: %w", err)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return res, fmt.Errorf("whisperserver: parse JSON response: %w", err)
	}

	res.Text = strings.TrimSpace(out.Text)
	return res, nil
}

// ---- WAV helpers --------------------------------------------------------

// wavFormat holds the fields of the fmt sub-chunk the duration math needs.
type wavFormat struct {
	sampleRate int
	channels   int
}

// parseWAV walks the RIFF chunk list and returns the format and the raw PCM
// payload of the data sub-chunk. Only 16-bit PCM is accepted; whisper.cpp
// rejects anything else too.
func parseWAV(wav []byte) (wavFormat, []byte, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return wavFormat{}, nil, errors.New("not a RIFF/WAVE file")
	}

	var format wavFormat
	var pcm []byte
	for off := 12; off+8 <= len(wav); {
		id := string(wav[off : off+4])
		size := int(binary.LittleEndian.Uint32(wav[off+4 : off+8]))
		body := off + 8
		if body+size > len(wav) {
			return wavFormat{}, nil, errors.New("truncated chunk")
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return wavFormat{}, nil, errors.New("fmt chunk too short")
			}
			if audio := binary.LittleEndian.Uint16(wav[body : body+2]); audio != 1 {
				return wavFormat{}, nil, fmt.Errorf("unsupported audio format %d (need PCM)", audio)
			}
			if bps := binary.LittleEndian.Uint16(wav[body+14 : body+16]); bps != bitsPerSample {
				return wavFormat{}, nil, fmt.Errorf("unsupported bit depth %d (need 16)", bps)
			}
			format.channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			format.sampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
		case "data":
			pcm = wav[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if format.sampleRate <= 0 || format.channels <= 0 {
		return wavFormat{}, nil, errors.New("missing or invalid fmt chunk")
	}
	if pcm == nil {
		return wavFormat{}, nil, errors.New("missing data chunk")
	}
	return format, pcm, nil
}

// pcmDuration returns the playback duration of n bytes of PCM.
func pcmDuration(n int, f wavFormat) time.Duration {
	bytesPerSec := f.sampleRate * f.channels * (bitsPerSample / 8)
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSec)
}

// speechDuration estimates the voiced portion of pcm by summing fixed-size
// windows whose RMS energy exceeds rmsThreshold.
func speechDuration(pcm []byte, f wavFormat) time.Duration {
	windowBytes := f.sampleRate * f.channels * (bitsPerSample / 8) * windowMs / 1000
	if windowBytes <= 0 {
		return 0
	}

	var voiced int
	for off := 0; off < len(pcm); off += windowBytes {
		end := off + windowBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if computeRMS(pcm[off:end]) >= rmsThreshold {
			voiced += end - off
		}
	}
	return pcmDuration(voiced, f)
}

// computeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer. Returns 0 for buffers shorter than one sample.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
