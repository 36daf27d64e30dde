// Command feedbackbot runs the feedback chat server and its terminal client.
//
// Usage:
//
//	feedbackbot serve
//	feedbackbot chat
//	feedbackbot detect opgave.docx
//	feedbackbot hash-password
package main

func main() {
	Execute()
}
