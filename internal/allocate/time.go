package allocate

import "time"

// nowFunc is overridden in tests to make expiration math deterministic.
var nowFunc = func() int64 { return time.Now().Unix() }
