package timezone

import (
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	mu              sync.RWMutex
	currentLocation *time.Location
	clock           = time.Now
)

// Initialize setzt die Zeitzone. Ein leerer Name fällt auf die TZ-Umgebungsvariable
// und danach auf die lokale Zeitzone zurück.
func Initialize(name string) {
	if name == "" {
		name = os.Getenv("TZ")
	}

	loc := time.Local
	if name != "" && name != "Local" {
		l, err := time.LoadLocation(name)
		if err != nil {
			log.Warnf("Failed to load timezone %s: %v. Falling back to local time.", name, err)
		} else {
			loc = l
		}
	}

	mu.Lock()
	currentLocation = loc
	mu.Unlock()
	log.Debugf("Timezone initialized to %s", loc)
}

// Now gibt die aktuelle Zeit in der konfigurierten Zeitzone zurück
func Now() time.Time {
	mu.RLock()
	loc, now := currentLocation, clock
	mu.RUnlock()

	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

// SetClock ersetzt die Zeitquelle; gibt eine Funktion zum Zurücksetzen zurück.
// Nur für Tests gedacht.
func SetClock(fn func() time.Time) (restore func()) {
	mu.Lock()
	prev := clock
	clock = fn
	mu.Unlock()

	return func() {
		mu.Lock()
		clock = prev
		mu.Unlock()
	}
}

// Format formatiert ein time.Time-Objekt mit der konfigurierten Zeitzone
func Format(t time.Time, layout string) string {
	mu.RLock()
	loc := currentLocation
	mu.RUnlock()

	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(layout)
}

// Display formatiert Zeitstempel für Listen ("2006-01-02 15:04:05")
func Display(t time.Time) string {
	return Format(t, time.DateTime)
}
