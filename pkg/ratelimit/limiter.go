// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"fmt"
	"sync"
)

// Limiter checks and records request counts against Config's rules.
type Limiter struct {
	config *Config
	store  Store
	mu     sync.Mutex
}

// NewRateLimiter builds a Limiter over store, validating that every rule
// in cfg has a positive ceiling.
func NewRateLimiter(cfg *Config, store Store) (*Limiter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ratelimit: config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("ratelimit: store is required")
	}
	for i, rule := range cfg.Limits {
		if rule.Limit <= 0 {
			return nil, fmt.Errorf("ratelimit: limits[%d]: limit must be positive", i)
		}
	}
	return &Limiter{config: cfg, store: store}, nil
}

// CheckAndRecord records count against identifier under scope for every
// configured rule, then reports whether every rule's ceiling still held
// after that increment. A disabled Limiter always reports Allowed without
// touching the store.
func (l *Limiter) CheckAndRecord(ctx context.Context, scope Scope, identifier string, count int64) (*CheckResult, error) {
	if !l.config.Enabled {
		return &CheckResult{Allowed: true}, nil
	}
	if identifier == "" {
		return nil, fmt.Errorf("ratelimit: identifier cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	result := &CheckResult{Allowed: true}
	for _, rule := range l.config.Limits {
		current, _, err := l.store.IncrementUsage(ctx, scope, identifier, rule.Window, count)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: increment usage: %w", err)
		}
		if current > rule.Limit {
			result.Allowed = false
			if result.Reason == "" {
				result.Reason = fmt.Sprintf("%s limit exceeded for %s window (%d/%d)", scope, rule.Window, current, rule.Limit)
			}
		}
	}
	return result, nil
}
