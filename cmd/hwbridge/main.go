// Command hwbridge loads a game engine module and drives it through the
// engine bridge: inspecting its entry points, running scripted sessions,
// and hosting an interactive console.
package main

func main() {
	Execute()
}
