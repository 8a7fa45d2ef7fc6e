package audio

import "time"

// Samples decodes little-endian PCM-16 bytes into int16 samples
func Samples(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// BytesDuration returns the playback duration of PCM-16 mono bytes
func BytesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// DurationBytes returns the PCM-16 mono byte length of a duration
func DurationBytes(d time.Duration, sampleRate int) int {
	return int(d.Seconds()*float64(sampleRate)) * 2
}
