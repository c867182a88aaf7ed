package search

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// applyTimeBoost multiplies each candidate's current ordering score by a
// recency factor and stores the product in finalScore. The factor decays
// exponentially with file age:
//
//	factor = 1 + maxBoost * 0.5^(ageDays/halfLifeDays)
//
// Modification times are read fresh from disk so results reflect edits
// made since indexing; a file that cannot be read keeps the indexed
// timestamp. Paths that resolve outside the vault are not touched.
func (p *Pipeline) applyTimeBoost(entries []*candidate, halfLifeDays int, now time.Time) {
	maxBoost := p.cfg.TimeBoost.MaxBoost
	if maxBoost <= 0 || halfLifeDays <= 0 {
		for _, c := range entries {
			c.finalScore = c.orderingScore()
		}
		return
	}

	for _, c := range entries {
		base := c.orderingScore()
		if c.row < 0 || c.row >= len(p.metas) {
			c.finalScore = base
			continue
		}
		meta := p.metas[c.row]
		mtime, ok := p.freshModTime(meta.Path, meta.Modified)
		if !ok {
			c.finalScore = base
			continue
		}
		ageDays := now.Sub(mtime).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		factor := 1 + maxBoost*math.Exp2(-ageDays/float64(halfLifeDays))
		c.finalScore = base * factor
	}
}

// freshModTime resolves the vault-relative path and stats it. The
// resolved path must stay inside the vault, checked lexically on the
// joined path and again after symlink resolution. A path escaping the
// vault returns ok=false so the caller skips the boost; a missing or
// unreadable file falls back to the indexed modification time.
func (p *Pipeline) freshModTime(relPath string, indexed time.Time) (time.Time, bool) {
	joined := filepath.Clean(filepath.Join(p.vaultPath, filepath.FromSlash(relPath)))
	if !pathWithin(p.vaultPath, joined) {
		p.logger.Warn("time_boost_path_rejected", "path", relPath)
		return time.Time{}, false
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return indexed, true
	}
	if !pathWithin(p.vaultCanon, resolved) {
		p.logger.Warn("time_boost_path_rejected", "path", relPath)
		return time.Time{}, false
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return indexed, true
	}
	return info.ModTime(), true
}

// pathWithin reports whether child equals root or sits below it. Both
// arguments must already be absolute and cleaned.
func pathWithin(root, child string) bool {
	if child == root {
		return true
	}
	return strings.HasPrefix(child, root+string(filepath.Separator))
}
