package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/echochamber/pkg/audio"
)

// Dir writes utterances and replies as 16-bit mono WAV files.
//
// Utterances go to userinput_<unix>.wav in the utterance directory, which by
// default is the user-clips directory so that recordings join the ambient
// rotation. Replies go to answer_<unix>.wav in the answers directory; an empty
// answers directory disables them.
type Dir struct {
	utterDir   string
	answersDir string
	now        func() time.Time
}

// NewDir creates both directories if needed.
func NewDir(utterDir, answersDir string) (*Dir, error) {
	if utterDir == "" {
		return nil, errors.New("archive: utterance directory is required")
	}
	for _, d := range []string{utterDir, answersDir} {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("archive: create %q: %w", d, err)
		}
	}
	return &Dir{utterDir: utterDir, answersDir: answersDir, now: time.Now}, nil
}

// SaveUtterance writes the utterance and returns the file path.
func (d *Dir) SaveUtterance(ctx context.Context, utt audio.Utterance) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if utt.Len() == 0 {
		return "", errors.New("archive: empty utterance")
	}
	return d.write(d.utterDir, "userinput", utt.Samples(), utt.SampleRate())
}

// SaveReply writes a synthesised reply. It returns "" without error when no
// answers directory is configured.
func (d *Dir) SaveReply(ctx context.Context, clip audio.Clip) (string, error) {
	if d.answersDir == "" {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.write(d.answersDir, "answer", clip.Samples, clip.SampleRate)
}

func (d *Dir) write(dir, prefix string, samples []int16, rate int) (string, error) {
	path, err := d.freeName(dir, prefix)
	if err != nil {
		return "", err
	}
	if err := audio.WriteWAVFile(path, samples, rate); err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	return path, nil
}

// freeName returns <prefix>_<unix>.wav, adding a counter when several files
// land in the same second.
func (d *Dir) freeName(dir, prefix string) (string, error) {
	base := fmt.Sprintf("%s_%d", prefix, d.now().Unix())
	path := filepath.Join(dir, base+".wav")
	for i := 1; ; i++ {
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("archive: stat %q: %w", path, err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.wav", base, i))
	}
}
