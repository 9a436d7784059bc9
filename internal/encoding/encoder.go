package encoding

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"time"
)

// EncoderPool manages a pool of reusable buffers for JSON encoding
type EncoderPool struct {
	pool chan *bytes.Buffer
	size int
}

// NewEncoderPool creates a new encoder pool with specified size
func NewEncoderPool(size int) *EncoderPool {
	if size <= 0 {
		size = 10
	}

	pool := make(chan *bytes.Buffer, size)
	for i := 0; i < size; i++ {
		pool <- &bytes.Buffer{}
	}

	return &EncoderPool{
		pool: pool,
		size: size,
	}
}

func (ep *EncoderPool) getBuffer() *bytes.Buffer {
	select {
	case buf := <-ep.pool:
		buf.Reset()
		return buf
	default:
		// Pool exhausted, allocate a fresh buffer
		slog.Debug("Encoder pool exhausted, allocating buffer")
		return &bytes.Buffer{}
	}
}

func (ep *EncoderPool) returnBuffer(buf *bytes.Buffer) {
	select {
	case ep.pool <- buf:
	default:
		// Pool full, let the buffer be collected
	}
}

// Marshal marshals data through a pooled buffer
func (ep *EncoderPool) Marshal(v interface{}) ([]byte, error) {
	buf := ep.getBuffer()
	defer ep.returnBuffer(buf)

	encoder := json.NewEncoder(buf)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}

	// Encode appends a trailing newline; strip it. The buffer is reused, so
	// the bytes must be copied out.
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// DecoderPool provides JSON decoding with consistent options
type DecoderPool struct {
	size int
}

// NewDecoderPool creates a new decoder pool with specified size
func NewDecoderPool(size int) *DecoderPool {
	if size <= 0 {
		size = 10
	}
	return &DecoderPool{size: size}
}

// Unmarshal unmarshals data
func (dp *DecoderPool) Unmarshal(data []byte, v interface{}) error {
	return json.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// OptimizedJSONEncoder provides pooled JSON encoding/decoding for hot paths
// like the cohort summary cache.
type OptimizedJSONEncoder struct {
	encoderPool *EncoderPool
	decoderPool *DecoderPool
}

// NewOptimizedJSONEncoder creates a new optimized JSON encoder
func NewOptimizedJSONEncoder() *OptimizedJSONEncoder {
	return &OptimizedJSONEncoder{
		encoderPool: NewEncoderPool(20),
		decoderPool: NewDecoderPool(20),
	}
}

// Marshal marshals data through the buffer pool
func (oje *OptimizedJSONEncoder) Marshal(v interface{}) ([]byte, error) {
	return oje.encoderPool.Marshal(v)
}

// Unmarshal unmarshals data
func (oje *OptimizedJSONEncoder) Unmarshal(data []byte, v interface{}) error {
	return oje.decoderPool.Unmarshal(data, v)
}

// GetStats returns encoder/decoder pool statistics
func (oje *OptimizedJSONEncoder) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"encoder_pool_size":      cap(oje.encoderPool.pool),
		"encoder_pool_available": len(oje.encoderPool.pool),
		"decoder_pool_size":      oje.decoderPool.size,
	}
}

// Global optimized encoder instance
var globalOptimizedEncoder = NewOptimizedJSONEncoder()

// MarshalJSON marshals data using the global optimized encoder
func MarshalJSON(v interface{}) ([]byte, error) {
	return globalOptimizedEncoder.Marshal(v)
}

// UnmarshalJSON unmarshals data using the global optimized encoder
func UnmarshalJSON(data []byte, v interface{}) error {
	return globalOptimizedEncoder.Unmarshal(data, v)
}

// GlobalEncoderStats reports pool counters for the shared encoder, for the
// pool stats endpoint
func GlobalEncoderStats() map[string]interface{} {
	return globalOptimizedEncoder.GetStats()
}

// BenchmarkJSONPerformance benchmarks JSON encoding/decoding against a
// representative prediction payload and logs the results at startup when
// profiling is enabled.
func BenchmarkJSONPerformance() {
	data := map[string]interface{}{
		"student_id": "S2024-0042",
		"risk_score": 0.27,
		"risk_level": "low",
		"risk_emoji": "🟢",
		"confidence": 0.91,
		"performance_metrics": map[string]float64{
			"academic_score":   0.8125,
			"engagement_score": 0.7,
			"activity_score":   0.7667,
			"profile_score":    0.9,
			"social_score":     0.61,
		},
		"recommendations": []string{"Keep up consistent event participation"},
	}

	// Warm up
	for i := 0; i < 1000; i++ {
		jsonData, _ := MarshalJSON(data)
		_ = UnmarshalJSON(jsonData, &map[string]interface{}{})
	}

	// Benchmark marshaling
	start := time.Now()
	for i := 0; i < 10000; i++ {
		_, err := MarshalJSON(data)
		if err != nil {
			slog.Error("Marshal benchmark failed", "error", err)
			return
		}
	}
	marshalDuration := time.Since(start)

	// Benchmark unmarshaling
	jsonData, _ := MarshalJSON(data)
	start = time.Now()
	for i := 0; i < 10000; i++ {
		var result map[string]interface{}
		err := UnmarshalJSON(jsonData, &result)
		if err != nil {
			slog.Error("Unmarshal benchmark failed", "error", err)
			return
		}
	}
	unmarshalDuration := time.Since(start)

	slog.Info("JSON performance benchmarks",
		"marshal_10k_ops_ms", marshalDuration.Milliseconds(),
		"unmarshal_10k_ops_ms", unmarshalDuration.Milliseconds(),
	)
}
