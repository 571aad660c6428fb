// Command tokens shows how a model's tokenizer encodes text.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/martinemde/stepagent/unifiedllm"
)

func main() {
	model := flag.String("model", "gpt-4o", "model whose tokenizer to use")
	flag.Parse()

	text := strings.Join(flag.Args(), " ")
	if text == "" {
		text = "Hey there my name is Vinit Kumar"
	}

	tc, err := unifiedllm.NewTokenCounter(*model)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	encoded := tc.Encode(text)
	fmt.Printf("Encoded: %v\n", encoded)
	fmt.Printf("Decoded: %s\n", tc.Decode(encoded))
	fmt.Printf("Tokens: %d\n", len(encoded))
}
