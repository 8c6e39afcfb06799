// Package sentinel defines Error, the string type behind every h2env sentinel
// error. Values of Error can be declared as constants, so callers cannot
// reassign ErrSpawn or ErrShutdown, and errors.Is matches them through
// wrapping because Error is comparable.
package sentinel
