// Package compression shrinks long instruction prompts with a reasoning
// service while keeping them usable by a downstream model.
//
// A Compressor runs each prompt through a bounded loop:
//
//  1. Ask the service for regex rules naming spans that must stay verbatim,
//     and extract those spans (ExtractStatics).
//  2. Ask the service to compress the prompt into chunks, each either compact
//     prose or a reference to a static span.
//  3. Reconstruct the chunks (Reconstruct), expand them back into prose and
//     have the service judge whether the expansion instructs the same task.
//  4. On success, wrap the chunks for delivery (ReconstructFinal). On
//     failure, ask the service to repair the chunks and go again.
//
// Compression is a pure optimization. When every attempt fails, or the
// result is not strictly shorter than the input, the input comes back
// unchanged. The only error Compress reports for a well-formed request is
// ErrInsufficientContext.
//
// Prompts larger than the model's budget are split into segments
// (SplitSegments) that are compressed concurrently and joined in order.
//
// Basic usage:
//
//	c, err := compression.New(full, fast, measurer,
//	    compression.WithContextWindow(8000),
//	    compression.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	res, err := c.Compress(ctx, prompt, 0)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Compressed)
package compression
