package lan

import "bufio"

// readLine 读取一行（含换行符）
//
// 超过 max 字节的行被整行丢弃，返回 tooLong=true 且 line 为 nil；
// 读取错误时返回已读部分。
func readLine(r *bufio.Reader, max int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > max+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return line, tooLong, err
	}
}
