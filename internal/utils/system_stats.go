package utils

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"facegate/internal/core/processor"
	"facegate/internal/util/timezone"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

var (
	lastCPUTime        time.Time
	lastCPUUsage       float64
	cpuUsageMutex      sync.Mutex
	cpuUsageSampleRate = 500 * time.Millisecond
)

// StatsSource liefert den Zustand des Capture-Workers
type StatsSource interface {
	Stats() processor.Stats
}

// SystemStats enthält aktuelle System- und Anwendungsstatistiken
type SystemStats struct {
	NumCPU      int     `json:"num_cpu"`
	GoRoutines  int     `json:"go_routines"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"` // belegter Hauptspeicher in Prozent
	MemoryAlloc uint64  `json:"memory_alloc"`
	MemorySys   uint64  `json:"memory_sys"`

	// Capture-Worker
	Worker *processor.Stats `json:"worker,omitempty"`

	// Registrierte Identitäten
	Identities int `json:"identities"`

	Timestamp time.Time `json:"timestamp"`
}

// FormatBytes formatiert Bytes in lesbare Einheiten (KB, MB, GB)
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d Bytes", bytes)
	}
}

// GetCPUUsage berechnet die CPU-Auslastung mit gopsutil
func GetCPUUsage() float64 {
	cpuUsageMutex.Lock()
	defer cpuUsageMutex.Unlock()

	// Wenn weniger als 500ms seit dem letzten Sampling vergangen sind,
	// den gecachten Wert zurückgeben
	if time.Since(lastCPUTime) < cpuUsageSampleRate && lastCPUTime.Unix() > 0 {
		return lastCPUUsage
	}

	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		log.Warnf("Fehler bei CPU-Auslastungsmessung: %v", err)
		return 0.0
	}

	var usage float64
	if len(percentages) > 0 {
		usage = percentages[0] // Gesamtauslastung aller Kerne
	}

	lastCPUTime = time.Now()
	lastCPUUsage = usage

	return usage
}

// GetMemoryUsage liefert den belegten Hauptspeicher in Prozent
func GetMemoryUsage() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Warnf("Fehler bei Speichermessung: %v", err)
		return 0.0
	}
	return vm.UsedPercent
}

// GetSystemStats erfasst aktuelle System- und Anwendungsstatistiken
func GetSystemStats(worker StatsSource, identities int) *SystemStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := &SystemStats{
		NumCPU:      runtime.NumCPU(),
		GoRoutines:  runtime.NumGoroutine(),
		CPUUsage:    GetCPUUsage(),
		MemoryUsage: GetMemoryUsage(),
		MemoryAlloc: memStats.Alloc,
		MemorySys:   memStats.Sys,
		Identities:  identities,
		Timestamp:   timezone.Now(),
	}

	if worker != nil {
		ws := worker.Stats()
		stats.Worker = &ws
	}

	return stats
}
