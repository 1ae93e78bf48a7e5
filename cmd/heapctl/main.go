// heapctl drives a heapkit allocator from the command line.
package main

func main() {
	execute()
}
