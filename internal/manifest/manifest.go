// Package manifest loads the indexing inputs: which videos exist, where they
// live, how they are segmented and what was said in each segment.
package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bdougie/videorag/internal/models"
)

// Manifest is the decoded video registry.
type Manifest struct {
	Videos []Video `yaml:"videos"`

	byName map[string]int
}

// Video is one registry entry. Path is resolved relative to the manifest.
type Video struct {
	Name     string    `yaml:"name"`
	Path     string    `yaml:"path"`
	Segments []Segment `yaml:"segments"`
}

// Segment carries either Time ("start-end") or explicit Start/End.
type Segment struct {
	Index      int       `yaml:"index"`
	Time       string    `yaml:"time,omitempty"`
	Start      *float64  `yaml:"start,omitempty"`
	End        *float64  `yaml:"end,omitempty"`
	Transcript string    `yaml:"transcript"`
	FrameTimes []float64 `yaml:"frame_times,omitempty"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	base := filepath.Dir(path)
	for i := range m.Videos {
		if !filepath.IsAbs(m.Videos[i].Path) {
			m.Videos[i].Path = filepath.Join(base, m.Videos[i].Path)
		}
	}
	return m, nil
}

// Parse decodes manifest YAML.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.normalize(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) normalize() error {
	m.byName = make(map[string]int, len(m.Videos))
	for i := range m.Videos {
		v := &m.Videos[i]
		v.Path = strings.TrimSpace(v.Path)
		if v.Path == "" {
			return fmt.Errorf("videos[%d]: path is required", i)
		}
		v.Name = strings.TrimSpace(v.Name)
		if v.Name == "" {
			v.Name = strings.TrimSuffix(filepath.Base(v.Path), filepath.Ext(v.Path))
		}
		if _, dup := m.byName[v.Name]; dup {
			return fmt.Errorf("videos[%d]: duplicate video name %q", i, v.Name)
		}
		m.byName[v.Name] = i

		seen := make(map[int]bool, len(v.Segments))
		for j := range v.Segments {
			seg := &v.Segments[j]
			if seen[seg.Index] {
				return fmt.Errorf("video %s: duplicate segment index %d", v.Name, seg.Index)
			}
			seen[seg.Index] = true
			if err := seg.resolveTimes(); err != nil {
				return fmt.Errorf("video %s segment %d: %w", v.Name, seg.Index, err)
			}
		}
		sort.Slice(v.Segments, func(a, b int) bool { return v.Segments[a].Index < v.Segments[b].Index })
	}
	return nil
}

func (s *Segment) resolveTimes() error {
	if s.Start != nil && s.End != nil {
		if *s.End <= *s.Start || *s.Start < 0 {
			return fmt.Errorf("bad time range %v-%v", *s.Start, *s.End)
		}
		return nil
	}
	if s.Time == "" {
		return fmt.Errorf("either time or start and end are required")
	}
	start, end, err := models.ParseTimeRange(s.Time)
	if err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("bad time range %q", s.Time)
	}
	s.Start, s.End = &start, &end
	return nil
}

func (s Segment) model() models.VideoSegment {
	return models.VideoSegment{
		Index:      s.Index,
		Start:      *s.Start,
		End:        *s.End,
		FrameTimes: s.FrameTimes,
		Transcript: s.Transcript,
	}
}

// Models converts the registry into pipeline inputs. A non-empty names list
// selects a subset, in registry order.
func (m *Manifest) Models(names ...string) ([]models.Video, error) {
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := m.byName[name]; !ok {
			return nil, fmt.Errorf("video %q is not in the manifest", name)
		}
		want[name] = true
	}
	var out []models.Video
	for _, v := range m.Videos {
		if len(want) > 0 && !want[v.Name] {
			continue
		}
		mv := models.Video{Name: v.Name, Path: v.Path, Segments: make([]models.VideoSegment, len(v.Segments))}
		for i, seg := range v.Segments {
			mv.Segments[i] = seg.model()
		}
		out = append(out, mv)
	}
	return out, nil
}

// LookupSegment resolves a segment for the refiner.
func (m *Manifest) LookupSegment(_ context.Context, video string, index int) (string, models.VideoSegment, error) {
	i, ok := m.byName[video]
	if !ok {
		return "", models.VideoSegment{}, fmt.Errorf("video %q is not in the manifest", video)
	}
	v := m.Videos[i]
	for _, seg := range v.Segments {
		if seg.Index == index {
			return v.Path, seg.model(), nil
		}
	}
	return "", models.VideoSegment{}, fmt.Errorf("video %s has no segment %d", video, index)
}
