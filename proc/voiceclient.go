package proc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/blare/sys"
)

const joinAttempts = 5

// Error strings matched by the coordinator's retry classifier.
var (
	errNotConnected   = errors.New("not connected to voice")
	errAlreadyPlaying = errors.New("audio already playing")
)

// VoiceClient abstracts the external voice connection the coordinator
// drives. The production implementation wraps a disgo voice connection;
// tests substitute a scripted fake.
type VoiceClient interface {
	Join(ctx context.Context, guildID, channelID snowflake.ID) error
	Leave(ctx context.Context)
	IsReady() bool
	IsPlaying() bool
	Play(ctx context.Context, input string, volume float64) error
	Stop()
	Close(ctx context.Context)
}

// --- Production Implementation ---

// DiscordVoiceClient plays audio into a Discord voice channel by piping
// an ffmpeg transcode of the input into the connection as Opus frames.
type DiscordVoiceClient struct {
	client *bot.Client

	mu    sync.Mutex
	conn  voice.Conn
	ready bool
	cmd   *exec.Cmd
	stop  chan struct{}

	playing atomic.Bool
}

func NewDiscordVoiceClient(client *bot.Client) *DiscordVoiceClient {
	return &DiscordVoiceClient{client: client}
}

func (v *DiscordVoiceClient) Join(ctx context.Context, guildID, channelID snowflake.ID) error {
	v.mu.Lock()
	if v.conn != nil {
		v.conn.Close(ctx)
		v.ready = false
	}
	conn := v.client.VoiceManager.CreateConn(guildID)
	v.conn = conn
	v.mu.Unlock()

	var err error
	for i := 1; i <= joinAttempts; i++ {
		sys.LogVoice(sys.MsgVoiceJoining, channelID.String(), i, joinAttempts)

		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = conn.Open(openCtx, channelID, false, false)
		cancel()

		if err == nil {
			v.mu.Lock()
			v.ready = true
			v.mu.Unlock()
			return nil
		}

		if i < joinAttempts {
			// Exponential backoff between join attempts
			time.Sleep(time.Duration(1<<uint(i-1)) * 1000 * time.Millisecond)
		}
	}
	return fmt.Errorf("failed to join voice channel: %w", err)
}

func (v *DiscordVoiceClient) Leave(ctx context.Context) {
	v.Stop()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conn != nil {
		v.conn.Close(ctx)
		v.conn = nil
	}
	v.ready = false
}

func (v *DiscordVoiceClient) IsReady() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conn != nil && v.ready
}

func (v *DiscordVoiceClient) IsPlaying() bool {
	return v.playing.Load()
}

// Play transcodes the input (local path or URL) with ffmpeg and streams
// the resulting Ogg/Opus output into the voice connection. It blocks
// until the clip finishes, the context is cancelled, or Stop is called.
func (v *DiscordVoiceClient) Play(ctx context.Context, input string, volume float64) error {
	if v.playing.Load() {
		return errAlreadyPlaying
	}

	v.mu.Lock()
	conn := v.conn
	if conn == nil || !v.ready {
		v.mu.Unlock()
		return errNotConnected
	}

	args := []string{
		"-i", input,
		"-map", "0:a",
		"-acodec", "libopus",
		"-b:a", "128k",
		"-vbr", "on",
		"-compression_level", "10",
		"-analyzeduration", "0",
		"-probesize", "32",
	}

	if volume != 1.0 {
		args = append(args, "-filter:a", fmt.Sprintf("volume=%.2f", volume))
	}

	args = append(args, "-f", "opus", "pipe:1")

	if strings.HasPrefix(input, "http") {
		// Optimize input for network streams
		args = append([]string{
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "2",
			"-user_agent", "Mozilla/5.0",
			"-fflags", "nobuffer",
			"-flags", "low_delay",
		}, args...)
	}

	cmd := exec.Command("ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		v.mu.Unlock()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, _ := cmd.StderrPipe()

	if err := cmd.Start(); err != nil {
		v.mu.Unlock()
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	stop := make(chan struct{})
	v.cmd = cmd
	v.stop = stop
	v.mu.Unlock()

	v.playing.Store(true)
	defer v.playing.Store(false)

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			sys.LogDebug("ffmpeg: %s", scanner.Text())
		}
	}()

	provider := newOggStream(stdout)
	done := make(chan struct{})
	provider.onFinish = func() {
		close(done)
	}

	conn.SetOpusFrameProvider(provider)
	_ = conn.SetSpeaking(ctx, voice.SpeakingFlagMicrophone)

	select {
	case <-done:
		// Drain the jitter of the final frames before cutting speaking
		time.Sleep(100 * time.Millisecond)
	case <-ctx.Done():
	case <-stop:
	}

	_ = cmd.Process.Kill()
	_ = cmd.Wait()

	conn.SetOpusFrameProvider(nil)
	_ = conn.SetSpeaking(context.TODO(), 0)

	v.mu.Lock()
	v.cmd = nil
	v.stop = nil
	v.mu.Unlock()

	return nil
}

// Stop kills any in-flight transcode and silences the connection. It acts
// on the external stream only; a worker blocked in Play observes the
// closed stop channel and winds down.
func (v *DiscordVoiceClient) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.stop != nil {
		close(v.stop)
		v.stop = nil
	}
	if v.cmd != nil && v.cmd.Process != nil {
		_ = v.cmd.Process.Kill()
	}
	if v.conn != nil {
		v.conn.SetOpusFrameProvider(nil)
		_ = v.conn.SetSpeaking(context.TODO(), 0)
	}
}

func (v *DiscordVoiceClient) Close(ctx context.Context) {
	v.Leave(ctx)
}

// --- Low-Level Audio Provider ---

// oggStream implements voice.OpusFrameProvider by parsing Opus packets
// out of the Ogg container ffmpeg writes to its stdout.
type oggStream struct {
	reader    *bufio.Reader
	header    []byte
	segBuf    []byte
	packetBuf bytes.Buffer
	queue     [][]byte
	onFinish  func()
	once      sync.Once
}

func newOggStream(r io.Reader) *oggStream {
	return &oggStream{
		reader: bufio.NewReaderSize(r, 16384),
		header: make([]byte, 27),
		segBuf: make([]byte, 255),
	}
}

func (p *oggStream) Close() {
	// No-op
}

func (p *oggStream) triggerFinish() {
	p.once.Do(func() {
		if p.onFinish != nil {
			p.onFinish()
		}
	})
}

// ProvideOpusFrame parses the next Opus packet from the Ogg stream.
func (p *oggStream) ProvideOpusFrame() ([]byte, error) {
	// 1. Return queued packets if any
	if len(p.queue) > 0 {
		frame := p.queue[0]
		p.queue = p.queue[1:]
		return frame, nil
	}

scanLoop:
	for {
		sig, err := p.reader.Peek(4)
		if err != nil {
			p.triggerFinish()
			return nil, err
		}

		if string(sig) == "OggS" {
			_, err := io.ReadFull(p.reader, p.header)
			if err != nil {
				p.triggerFinish()
				return nil, err
			}
		} else {
			_, _ = p.reader.Discard(1)
			continue scanLoop
		}

		numSegs := int(p.header[26])
		segTable := p.segBuf[:numSegs]
		if _, err := io.ReadFull(p.reader, segTable); err != nil {
			p.triggerFinish()
			return nil, err
		}

		for _, segLen := range segTable {
			l := int(segLen)
			_, err := io.CopyN(&p.packetBuf, p.reader, int64(l))
			if err != nil {
				p.triggerFinish()
				return nil, err
			}

			if l < 255 {
				payload := p.packetBuf.Bytes()
				frame := make([]byte, len(payload))
				copy(frame, payload)
				p.packetBuf.Reset()

				// Skip Metadata packets (OpusHead/OpusTags).
				if len(frame) > 8 && (string(frame[:8]) == "OpusHead" || string(frame[:8]) == "OpusTags") {
					continue
				}

				p.queue = append(p.queue, frame)
			}
		}

		// If we found any frames in this page, return the first one.
		if len(p.queue) > 0 {
			frame := p.queue[0]
			p.queue = p.queue[1:]
			return frame, nil
		}
	}
}
