package experiment

import (
	"encoding/csv"
	"log"
	"os"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

var statsHeader = []string{"RunID", "Episode", "Steps", "Return", "AverageReward", "RewardStdDev", "MeanSpeed", "Failed"}

// EpisodeStats summarises one trajectory
type EpisodeStats struct {
	Steps         int
	AverageReward float64
	RewardStdDev  float64
	MeanSpeed     float64 // over every observed vehicle and step
}

func episodeStats(traj Trajectory) EpisodeStats {
	s := EpisodeStats{Steps: len(traj.Steps)}
	if s.Steps == 0 {
		return s
	}
	rewards := traj.Rewards()
	s.AverageReward, s.RewardStdDev = stat.MeanStdDev(rewards, nil)
	if s.Steps == 1 {
		s.RewardStdDev = 0
	}

	var speeds []float64
	for _, step := range traj.Steps {
		speeds = append(speeds, step.Observation.Speeds...)
	}
	if len(speeds) > 0 {
		s.MeanSpeed = stat.Mean(speeds, nil)
	}
	return s
}

// statsWriter appends one CSV row per episode. A nil writer discards rows.
type statsWriter struct {
	file *os.File
	w    *csv.Writer
}

func newStatsWriter(path string) (*statsWriter, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	sw := &statsWriter{file: f, w: csv.NewWriter(f)}
	if err := sw.w.Write(statsHeader); err != nil {
		f.Close()
		return nil, err
	}
	return sw, nil
}

func (s *statsWriter) Write(traj Trajectory) {
	if s == nil {
		return
	}
	st := episodeStats(traj)
	row := []string{
		traj.RunID,
		strconv.Itoa(traj.Episode),
		strconv.Itoa(st.Steps),
		strconv.FormatFloat(traj.Return, 'f', 6, 64),
		strconv.FormatFloat(st.AverageReward, 'f', 6, 64),
		strconv.FormatFloat(st.RewardStdDev, 'f', 6, 64),
		strconv.FormatFloat(st.MeanSpeed, 'f', 6, 64),
		strconv.FormatBool(traj.Failed),
	}
	if err := s.w.Write(row); err != nil {
		log.Printf("Warning: Failed to write stats row: %v", err)
	}
	s.w.Flush()
}

func (s *statsWriter) Close() {
	if s == nil {
		return
	}
	s.w.Flush()
	if err := s.file.Close(); err != nil {
		log.Printf("Warning: Failed to close stats file: %v", err)
	}
}
