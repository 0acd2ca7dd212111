/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"

	"github.com/blacktop/govmi/drivers/file"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var (
	checkImage string
	checkSize  int
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkImage, "image", "i", "govmi.img", "Path to the memory-dump file")
	checkCmd.Flags().IntVar(&checkSize, "size", unix.Getpagesize()*16, "Size to allocate if the image doesn't exist (bytes)")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Open the file driver against an image and report its page size",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := file.Open(checkImage, checkSize)
		if err != nil {
			return fmt.Errorf("open %s: %w", checkImage, err)
		}
		defer d.Close()

		fmt.Printf("image: %s\n", checkImage)
		fmt.Printf("size: %d bytes\n", checkSize)
		fmt.Printf("page size: %d bytes\n", unix.Getpagesize())
		fmt.Println(color.GreenString("driver ready"))
		return nil
	},
}
