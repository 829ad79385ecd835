package net

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
)

// LinkScheme prefixes share links, localboard://host:port/room.
const LinkScheme = "localboard://"

// OutgoingIP finds the local address other machines on the LAN can reach
// this host at.
func OutgoingIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		// offline networks: take the first non loopback interface
		return localIPFallback()
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

func localIPFallback() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, address := range addrs {
			if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	slog.Warn("no suitable local IP found, share link points at loopback")
	return "127.0.0.1"
}

func ShareLink(host string, port int, room string) string {
	return fmt.Sprintf("%s%s/%s", LinkScheme, net.JoinHostPort(host, fmt.Sprint(port)), url.PathEscape(room))
}

// ParseShareLink splits a share link into the hub base url and the room. The
// room may be empty.
func ParseShareLink(link string) (serverURL, room string, err error) {
	rest, ok := strings.CutPrefix(link, LinkScheme)
	if !ok {
		return "", "", fmt.Errorf("not a share link: %q", link)
	}
	addr, path, _ := strings.Cut(rest, "/")
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", "", fmt.Errorf("invalid share link %q: %w", link, err)
	}
	room, err = url.PathUnescape(strings.TrimSuffix(path, "/"))
	if err != nil {
		return "", "", fmt.Errorf("invalid share link %q: %w", link, err)
	}
	if strings.Contains(room, "/") {
		return "", "", fmt.Errorf("invalid share link %q: bad room", link)
	}
	return "http://" + addr, room, nil
}
