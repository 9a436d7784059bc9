package middleware

import (
	"compress/gzip"
	"io"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // Minimum response size to compress (bytes)
	CompressionLevel int      // Gzip compression level (1-9)
	ContentTypes     []string // Content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024, // Compress responses >= 1KB
		CompressionLevel: 6,    // Balanced compression level
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
			"application/xml",
			"text/xml",
		},
	}
}

// CompressionMiddleware provides gzip compression for HTTP responses
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	if config.CompressionLevel < gzip.BestSpeed || config.CompressionLevel > gzip.BestCompression {
		config.CompressionLevel = gzip.DefaultCompression
	}

	cm := &CompressionMiddleware{
		config: config,
		stats:  NewCompressionStats(),
	}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(io.Discard, config.CompressionLevel)
		return gz
	}
	return cm
}

// Handler returns a Gin middleware that compresses eligible responses.
// The compress-or-not decision happens on the first body write: gin renders
// JSON in a single Write, so the first chunk length is the response length
// for every JSON endpoint in this service.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cm.clientAcceptsGzip(c) {
			c.Next()
			return
		}

		gw := &gzipResponseWriter{ResponseWriter: c.Writer, cm: cm}
		c.Writer = gw

		defer func() {
			gw.finish()
			c.Writer = gw.ResponseWriter
		}()

		c.Next()
	}
}

// clientAcceptsGzip checks if the client accepts gzip compression and the
// request is a plain HTTP exchange.
func (cm *CompressionMiddleware) clientAcceptsGzip(c *gin.Context) bool {
	if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
		return false
	}
	if c.GetHeader("Connection") == "Upgrade" || c.GetHeader("Sec-WebSocket-Key") != "" {
		return false
	}
	return true
}

// shouldCompress checks if the content type should be compressed
func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

func (cm *CompressionMiddleware) getGzipWriter(w io.Writer) *gzip.Writer {
	gz := cm.pool.Get().(*gzip.Writer)
	gz.Reset(w)
	return gz
}

func (cm *CompressionMiddleware) returnGzipWriter(gz *gzip.Writer) {
	cm.pool.Put(gz)
}

// gzipResponseWriter wraps the gin response writer, switching to gzip output
// when the first body chunk is large enough and of a compressible type.
type gzipResponseWriter struct {
	gin.ResponseWriter
	cm            *CompressionMiddleware
	gz            *gzip.Writer
	decided       bool
	compress      bool
	originalBytes int64
}

// Write decides compression on the first chunk, then streams.
func (gzw *gzipResponseWriter) Write(data []byte) (int, error) {
	gzw.originalBytes += int64(len(data))

	if !gzw.decided {
		gzw.decided = true
		contentType := gzw.Header().Get("Content-Type")
		if len(data) >= gzw.cm.config.MinSize && gzw.cm.shouldCompress(contentType) {
			gzw.compress = true
			gzw.Header().Set("Content-Encoding", "gzip")
			gzw.Header().Set("Vary", "Accept-Encoding")
			gzw.Header().Del("Content-Length")
			gzw.gz = gzw.cm.getGzipWriter(gzw.ResponseWriter)
		}
	}

	if gzw.compress {
		if _, err := gzw.gz.Write(data); err != nil {
			return 0, err
		}
		// Report the uncompressed length so gin render accounting stays sane
		return len(data), nil
	}
	return gzw.ResponseWriter.Write(data)
}

// WriteString routes through Write so string renders are compressed too
func (gzw *gzipResponseWriter) WriteString(s string) (int, error) {
	return gzw.Write([]byte(s))
}

// Flush flushes the gzip writer before the underlying writer
func (gzw *gzipResponseWriter) Flush() {
	if gzw.gz != nil {
		_ = gzw.gz.Flush()
	}
	gzw.ResponseWriter.Flush()
}

// finish closes the gzip stream and records stats
func (gzw *gzipResponseWriter) finish() {
	compressedBytes := gzw.originalBytes

	if gzw.gz != nil {
		_ = gzw.gz.Close()
		gzw.cm.returnGzipWriter(gzw.gz)
		gzw.gz = nil
		if size := gzw.ResponseWriter.Size(); size > 0 {
			compressedBytes = int64(size)
		}
	}

	gzw.cm.stats.RecordRequest(gzw.originalBytes, compressedBytes, gzw.compress)
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	mutex              sync.RWMutex
}

// NewCompressionStats creates new compression statistics
func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.TotalRequests++
	cs.TotalBytes += originalSize

	if compressed {
		cs.CompressedRequests++
		cs.CompressedBytes += compressedSize
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	compressionRatio := float64(0)
	if cs.TotalBytes > 0 {
		compressionRatio = float64(cs.CompressedBytes) / float64(cs.TotalBytes)
	}

	return map[string]interface{}{
		"total_requests":      cs.TotalRequests,
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"compressed_bytes":    cs.CompressedBytes,
		"compression_ratio":   compressionRatio,
		"compression_savings": 1.0 - compressionRatio,
		"compression_enabled": cs.TotalRequests > 0 && cs.CompressedRequests > 0,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
