// Package speech compiles local times and dates into ordered lists of
// pre-recorded clip ids, using a German and an English grammar.
//
// Clip ids are relative paths "<base>/<name>.<ext>" where base depends only
// on the language. Whether the clip exists on storage is not checked here.
package speech

import (
	"strings"

	"speakclock/internal/model"
)

// Playlist capacities. Clips past the capacity are dropped.
const (
	MaxTimeClipsGerman  = 2
	MaxTimeClipsEnglish = 3
	MaxDateClips        = 10
)

// MaxTimeClips returns the time playlist capacity for lang.
func MaxTimeClips(lang model.Language) int {
	if lang == model.English {
		return MaxTimeClipsEnglish
	}
	return MaxTimeClipsGerman
}

// Catalog locates clips for each language.
type Catalog struct {
	GermanBase  string
	EnglishBase string
	Ext         string
}

// DefaultCatalog matches the clip layout shipped with the device image.
func DefaultCatalog() Catalog {
	return Catalog{GermanBase: "/mp3", EnglishBase: "/mp3_en", Ext: "mp3"}
}

// Base returns the clip directory for lang.
func (c Catalog) Base(lang model.Language) string {
	if lang == model.English {
		return strings.TrimRight(c.EnglishBase, "/")
	}
	return strings.TrimRight(c.GermanBase, "/")
}

// Clip returns the clip id for name in lang.
func (c Catalog) Clip(lang model.Language, name string) string {
	ext := strings.TrimPrefix(c.Ext, ".")
	if ext == "" {
		return c.Base(lang) + "/" + name
	}
	return c.Base(lang) + "/" + name + "." + ext
}

// builder collects clip names up to a fixed capacity. Names past the
// capacity are dropped.
type builder struct {
	catalog Catalog
	lang    model.Language
	max     int
	clips   []string
}

func newBuilder(c Catalog, lang model.Language, max int) *builder {
	return &builder{catalog: c, lang: lang, max: max, clips: make([]string, 0, max)}
}

func (b *builder) push(names ...string) {
	for _, name := range names {
		if len(b.clips) >= b.max {
			return
		}
		b.clips = append(b.clips, b.catalog.Clip(b.lang, name))
	}
}

func (b *builder) playlist(pauseAfter int) model.Playlist {
	if pauseAfter >= len(b.clips) {
		pauseAfter = model.NoPause
	}
	return model.Playlist{Language: b.lang, Clips: b.clips, PauseAfter: pauseAfter}
}
