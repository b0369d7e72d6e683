package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var episodePattern = regexp.MustCompile(`^ep(\d+)\.mp4$`)

// Episode describes one artifact. Ready means the file is present on disk
// and servable; a listing built from recorded history instead reports
// Ready=false.
type Episode struct {
	Ordinal int   `json:"episode"`
	Size    int64 `json:"size"`
	Ready   bool  `json:"ready"`
}

// Layout maps item ids and episode ordinals to filesystem paths. Presence of
// a non-empty artifact file is the only durable signal that an episode is
// done.
type Layout struct {
	// VideoDir holds raw, pre-transcode downloads.
	VideoDir string
	// CompressedDir holds one directory per item with the final artifacts.
	CompressedDir string
}

// ItemDir returns the artifact directory for an item.
func (l Layout) ItemDir(itemID string) string {
	return filepath.Join(l.CompressedDir, itemID)
}

// EpisodePath returns the final artifact path for (itemID, ordinal).
func (l Layout) EpisodePath(itemID string, ordinal int) string {
	return filepath.Join(l.CompressedDir, itemID, fmt.Sprintf("ep%d.mp4", ordinal))
}

// RawPath returns the temporary download path for (itemID, ordinal).
func (l Layout) RawPath(itemID string, ordinal int) string {
	return filepath.Join(l.VideoDir, fmt.Sprintf("%s_ep%d_raw.mp4", itemID, ordinal))
}

// EnsureItemDir creates the item directory if needed.
func (l Layout) EnsureItemDir(itemID string) error {
	return os.MkdirAll(l.ItemDir(itemID), 0o755)
}

// HasEpisode reports whether the artifact for (itemID, ordinal) exists and
// is non-empty.
func (l Layout) HasEpisode(itemID string, ordinal int) bool {
	info, err := os.Stat(l.EpisodePath(itemID, ordinal))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Episodes lists the item's artifacts sorted by ordinal.
func (l Layout) Episodes(itemID string) ([]Episode, error) {
	entries, err := os.ReadDir(l.ItemDir(itemID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	episodes := make([]Episode, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := episodePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		ordinal, err := strconv.Atoi(match[1])
		if err != nil || ordinal < 1 {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		episodes = append(episodes, Episode{Ordinal: ordinal, Size: info.Size(), Ready: true})
	}
	sort.Slice(episodes, func(i, j int) bool { return episodes[i].Ordinal < episodes[j].Ordinal })
	return episodes, nil
}

// CompletedCount returns the number of present, non-empty artifacts for the
// item.
func (l Layout) CompletedCount(itemID string) int {
	episodes, err := l.Episodes(itemID)
	if err != nil {
		return 0
	}
	return len(episodes)
}

// IsSatisfied implements the item-complete predicate: artifact count meets
// or exceeds the expected episode count.
func (l Layout) IsSatisfied(itemID string, expectedEpisodes int) bool {
	return l.CompletedCount(itemID) >= expectedEpisodes
}

// RemoveItem deletes the item's entire artifact directory.
func (l Layout) RemoveItem(itemID string) error {
	return os.RemoveAll(l.ItemDir(itemID))
}
