package functions

import (
	"fmt"
	"sync"

	"github.com/coregx/coregex"
)

// maxCachedPatterns bounds the compiled pattern cache.
const maxCachedPatterns = 64

var (
	patternMu    sync.Mutex
	patternCache = make(map[string]*coregex.Regexp)
)

func compilePattern(pattern string) (*coregex.Regexp, error) {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[pattern]; ok {
		return re, nil
	}
	re, err := coregex.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if len(patternCache) >= maxCachedPatterns {
		for k := range patternCache {
			delete(patternCache, k)
			break
		}
	}
	patternCache[pattern] = re
	return re, nil
}

// regexpFunc implements regexp(P, X), the function behind X REGEXP P. It
// returns 1 when X contains a match of P.
func regexpFunc(args []Value) (Value, error) {
	if args[0].IsNull() || args[1].IsNull() {
		return NewNullValue(), nil
	}
	re, err := compilePattern(args[0].AsString())
	if err != nil {
		return nil, fmt.Errorf("regexp(): %w", err)
	}
	if re.MatchString(args[1].AsString()) {
		return NewIntValue(1), nil
	}
	return NewIntValue(0), nil
}
