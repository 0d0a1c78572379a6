// wsync keeps a local, queryable copy of a wallabag account in sync.
package main

func main() {
	Execute()
}
