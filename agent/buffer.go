package main

import (
	"log"
	"sync"
)

// buffer is the agent's in-memory document, standing in for the browser
// editor widget. It satisfies reconciler.Editor.
type buffer struct {
	mu       sync.Mutex
	content  string
	cursor   int
	enabled  bool
	language string
}

func (b *buffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

func (b *buffer) SetContent(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = s
}

func (b *buffer) Cursor() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

func (b *buffer) SetCursor(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n > len(b.content) {
		n = len(b.content)
	}
	b.cursor = n
}

func (b *buffer) SetEnabled(enabled bool) {
	b.mu.Lock()
	changed := b.enabled != enabled
	b.enabled = enabled
	b.mu.Unlock()
	if changed {
		if enabled {
			log.Println("editor enabled")
		} else {
			log.Println("editor disabled until resynced")
		}
	}
}

func (b *buffer) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

func (b *buffer) SetLanguage(lang string) {
	b.mu.Lock()
	changed := b.language != lang
	b.language = lang
	b.mu.Unlock()
	if changed {
		log.Printf("language is now %s", lang)
	}
}

// Append adds text at the end of the buffer and places the cursor after
// it, returning the new content.
func (b *buffer) Append(text string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content += text
	b.cursor = len(b.content)
	return b.content
}
