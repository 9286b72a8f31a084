// Command ledgerctl is a REST client for a running ledgernode, grounded
// on the teacher's cmd/rechainctl/main.go command tree, rewired from its
// gRPC client onto plain HTTP since no generated proto package exists in
// the retrieved example to keep a gRPC client working against.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var apiAddr string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "ledgernode CLI tool",
	}
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api-addr", "http://localhost:1317", "node API address")

	rootCmd.AddCommand(nodeCmd(), blockCmd(), txCmd(), contractCmd(), casCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func nodeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "node", Short: "Node operations"}
	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Get node information",
		Run: func(cmd *cobra.Command, args []string) {
			mustGet("/node/info")
		},
	}, &cobra.Command{
		Use:   "mine",
		Short: "Trigger a block proposal (primary only)",
		Run: func(cmd *cobra.Command, args []string) {
			mustPost("/node/mine", nil)
		},
	})
	return cmd
}

func blockCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "block", Short: "Block operations"}
	cmd.AddCommand(&cobra.Command{
		Use:   "get [height]",
		Short: "Get block by height",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			mustGet("/blocks/height/" + args[0])
		},
	}, &cobra.Command{
		Use:   "head",
		Short: "Get the current chain head",
		Run: func(cmd *cobra.Command, args []string) {
			mustGet("/blocks/head")
		},
	})
	return cmd
}

func txCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tx", Short: "Transaction operations"}
	cmd.AddCommand(&cobra.Command{
		Use:   "submit [transaction-json-file]",
		Short: "Submit a signed transaction dict",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				fatalf("read transaction file: %v", err)
			}
			mustPost("/txs", data)
		},
	}, &cobra.Command{
		Use:   "pool",
		Short: "List pending mempool transactions",
		Run: func(cmd *cobra.Command, args []string) {
			mustGet("/mempool")
		},
	})
	return cmd
}

func contractCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "contract", Short: "Contract state operations"}
	cmd.AddCommand(&cobra.Command{
		Use:   "storage [address]",
		Short: "Get a deployed contract's storage",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			mustGet("/contracts/" + args[0] + "/storage")
		},
	}, &cobra.Command{
		Use:   "address [name]",
		Short: "Find a deployed contract's address by code name",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			mustGet("/contracts/by-name/" + args[0])
		},
	})
	return cmd
}

func casCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cas", Short: "Evidence attachment operations"}
	cmd.AddCommand(&cobra.Command{
		Use:   "store [file]",
		Short: "Store a file as a content-addressed evidence attachment",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				fatalf("read file: %v", err)
			}
			mustPost("/cas/objects", data)
		},
	}, &cobra.Command{
		Use:   "get [cid] [output]",
		Short: "Retrieve an evidence attachment by content ID",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := http.Get(apiAddr + "/cas/objects/" + args[0])
			if err != nil {
				fatalf("get object: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				fatalf("get object: status %d", resp.StatusCode)
			}
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				fatalf("read response: %v", err)
			}
			if err := os.WriteFile(args[1], data, 0o644); err != nil {
				fatalf("write file: %v", err)
			}
			fmt.Printf("object saved to %s\n", args[1])
		},
	})
	return cmd
}

func mustGet(path string) {
	resp, err := http.Get(apiAddr + path)
	if err != nil {
		fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func mustPost(path string, body []byte) {
	resp, err := http.Post(apiAddr+path, "application/json", bytes.NewReader(body))
	if err != nil {
		fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func printResponse(resp *http.Response) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fatalf("read response: %v", err)
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
