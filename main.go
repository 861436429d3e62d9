/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * star_relay - 星型拓扑的 P2P 房间
 * serve: 协调服务器, join: 终端客户端, rooms: 查看房间
 */
package main

import "github.com/maiguangyang/star_relay/cmd"

func main() {
	cmd.Execute()
}
