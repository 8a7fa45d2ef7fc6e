// Package capture reads continuous raw PCM audio from an external
// source process and delivers it to the pipeline in fixed-size chunks.
package capture
