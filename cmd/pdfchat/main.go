// Command pdfchat chats with PDF documents through a local or remote model.
package main

import "github.com/xiaobo-yang/pdf-chat/internal/commands"

func main() {
	commands.Execute()
}
