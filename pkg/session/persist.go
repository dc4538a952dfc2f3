package session

import (
	"errors"

	"gopkg.in/yaml.v3"

	"github.com/npc-cli/jsh/pkg/store/storedefs"
)

// Variables that are never persisted.
var transientVars = map[string]bool{"PWD": true, "OLDPWD": true}

func homeKey(sessionKey string) string    { return "home@" + sessionKey }
func historyKey(sessionKey string) string { return "history@" + sessionKey }

// PersistHome writes a snapshot of the session variables to the sink.
// Transient variables and values that cannot be serialized are skipped.
// Failures are logged.
func (s *Session) PersistHome() {
	if s.sink == nil {
		return
	}
	s.mu.Lock()
	snapshot := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		if !transientVars[k] && serializable(v) {
			snapshot[k] = v
		}
	}
	data, err := yaml.Marshal(snapshot)
	s.mu.Unlock()
	if err != nil {
		logger.Warnw("cannot marshal home", "session", s.Key, "err", err)
		return
	}
	if err := s.sink.Set(homeKey(s.Key), string(data)); err != nil {
		logger.Warnw("cannot persist home", "session", s.Key, "err", err)
	}
}

func serializable(v any) bool {
	switch v := v.(type) {
	case nil, string, bool, int, float64:
		return true
	case []any:
		for _, x := range v {
			if !serializable(x) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, x := range v {
			if !serializable(x) {
				return false
			}
		}
		return true
	}
	return false
}

// Rehydrate restores persisted variables and history. Persisted variables do
// not override variables already set. Failures are logged.
func (s *Session) Rehydrate() {
	if s.sink == nil {
		return
	}
	if data, err := s.sink.Get(homeKey(s.Key)); err == nil {
		var home map[string]any
		if err := yaml.Unmarshal([]byte(data), &home); err != nil {
			logger.Warnw("cannot parse persisted home", "session", s.Key, "err", err)
		} else {
			s.mu.Lock()
			for k, v := range home {
				if _, ok := s.vars[k]; !ok && !transientVars[k] {
					s.vars[k] = normalizeNumbers(v)
				}
			}
			s.mu.Unlock()
		}
	} else if !errors.Is(err, storedefs.ErrNoKey) {
		logger.Warnw("cannot read persisted home", "session", s.Key, "err", err)
	}

	if data, err := s.sink.Get(historyKey(s.Key)); err == nil {
		var history []string
		if err := yaml.Unmarshal([]byte(data), &history); err != nil {
			logger.Warnw("cannot parse persisted history", "session", s.Key, "err", err)
		} else {
			s.mu.Lock()
			s.history = history
			s.mu.Unlock()
		}
	} else if !errors.Is(err, storedefs.ErrNoKey) {
		logger.Warnw("cannot read persisted history", "session", s.Key, "err", err)
	}
}

// Integers decoded from YAML become float64, the number type of jsh values.
func normalizeNumbers(v any) any {
	switch v := v.(type) {
	case int:
		return float64(v)
	case []any:
		for i, x := range v {
			v[i] = normalizeNumbers(x)
		}
	case map[string]any:
		for k, x := range v {
			v[k] = normalizeNumbers(x)
		}
	}
	return v
}

// AddHistory appends line to the history, unless it repeats the latest entry,
// keeping at most max entries, and persists the history.
func (s *Session) AddHistory(line string, max int) {
	s.mu.Lock()
	if n := len(s.history); n > 0 && s.history[n-1] == line {
		s.mu.Unlock()
		return
	}
	s.history = append(s.history, line)
	if max > 0 && len(s.history) > max {
		s.history = append([]string(nil), s.history[len(s.history)-max:]...)
	}
	data, err := yaml.Marshal(s.history)
	s.mu.Unlock()

	if s.sink == nil {
		return
	}
	if err == nil {
		err = s.sink.Set(historyKey(s.Key), string(data))
	}
	if err != nil {
		logger.Warnw("cannot persist history", "session", s.Key, "err", err)
	}
}

// History returns a copy of the history, oldest first.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// HistoryLine returns the entry index positions back from the latest one,
// and the index to request next. An out of range index yields "".
func (s *Session) HistoryLine(index int) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.history)
	if index < 0 {
		return "", 0
	}
	if index >= n {
		return "", n
	}
	return s.history[n-1-index], index + 1
}
