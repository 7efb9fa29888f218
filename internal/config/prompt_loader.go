package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// PromptStore holds system prompt overrides loaded from files, keyed by
// operation. It is safe for concurrent use and can be reloaded in place when
// a prompt file changes on disk.
type PromptStore struct {
	mu      sync.RWMutex
	files   map[string]string // operation -> absolute path
	prompts map[string]string // operation -> content
}

// LoadPrompts reads every operation's promptFile. Operations without a
// prompt file use the built-in prompt.
func (c *Config) LoadPrompts() (*PromptStore, error) {
	log.Println("[CONFIG] Starting custom prompt loading from files")

	store := &PromptStore{
		files:   make(map[string]string),
		prompts: make(map[string]string),
	}

	for _, op := range Operations {
		file := c.AI.operation(op).PromptFile
		if file == "" {
			continue
		}
		absPath, err := filepath.Abs(file)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for %s prompt file '%s': %w", op, file, err)
		}
		content, err := loadPromptFromFile(absPath, op)
		if err != nil {
			return nil, err
		}
		store.files[op] = absPath
		store.prompts[op] = content
	}

	if len(store.prompts) == 0 {
		log.Println("[CONFIG] No custom prompts loaded - using built-in defaults")
	} else {
		log.Printf("[CONFIG] Total custom prompts loaded: %d", len(store.prompts))
	}

	return store, nil
}

// Get returns the override for op, or "" when the built-in prompt applies.
// A nil store has no overrides.
func (s *PromptStore) Get(op string) string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompts[op]
}

// Files returns the distinct prompt file paths, for watching.
func (s *PromptStore) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var files []string
	for _, f := range s.files {
		if !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}
	return files
}

// Reload re-reads path and updates every operation that uses it. A file that
// became empty or unreadable keeps the previous content and returns an error.
func (s *PromptStore) Reload(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reloaded := 0
	for op, f := range s.files {
		if f != absPath {
			continue
		}
		content, err := loadPromptFromFile(absPath, op)
		if err != nil {
			return err
		}
		s.prompts[op] = content
		reloaded++
	}
	if reloaded == 0 {
		return fmt.Errorf("no operation uses prompt file %s", absPath)
	}
	return nil
}

// loadPromptFromFile loads a prompt from a file with proper error handling and logging
func loadPromptFromFile(absPath, operation string) (string, error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s prompt file not found: %s", operation, absPath)
		}
		return "", fmt.Errorf("failed to read %s prompt file '%s': %w", operation, absPath, err)
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return "", fmt.Errorf("%s prompt file '%s' is empty", operation, absPath)
	}

	log.Printf("[CONFIG] Successfully loaded %s prompt from file: %s (%d characters)", operation, absPath, len(trimmed))
	return trimmed, nil
}

// validatePromptFile checks that a prompt file exists before loading
func validatePromptFile(file string) error {
	absPath, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("invalid prompt path: %s", file)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("prompt file not found: %s", absPath)
	}
	if info.IsDir() {
		return fmt.Errorf("prompt path is a directory: %s", absPath)
	}
	return nil
}
