package config

import (
	"context"
	"os"
	"sync/atomic"
	"time"
)

// CatalogHolder keeps the most recently loaded catalog for concurrent readers.
type CatalogHolder struct {
	current atomic.Pointer[Catalog]
}

// NewCatalogHolder returns a holder seeded with cat.
func NewCatalogHolder(cat *Catalog) *CatalogHolder {
	h := &CatalogHolder{}
	if cat != nil {
		h.current.Store(cat)
	}
	return h
}

// Get returns the current catalog or nil.
func (h *CatalogHolder) Get() *Catalog {
	return h.current.Load()
}

// Set replaces the current catalog.
func (h *CatalogHolder) Set(cat *Catalog) {
	h.current.Store(cat)
}

// AdminsFor returns admins from the current catalog.
func (h *CatalogHolder) AdminsFor(tenantID, branchID int64) []AdminConfig {
	cat := h.Get()
	if cat == nil {
		return nil
	}
	return cat.AdminsFor(tenantID, branchID)
}

// WatchCatalog reloads catalog.yaml on change and calls onUpdate with the latest catalog.
// It performs an initial load before entering the watch loop; an invalid edit keeps the previous catalog.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, onUpdate func(*Catalog)) error {
	if path == "" {
		path = "configs/catalog.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cat)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cat, err := LoadCatalog(path)
				if err != nil {
					continue
				}
				lastMod = info.ModTime()
				if onUpdate != nil {
					onUpdate(cat)
				}
			}
		}
	}()

	return nil
}
