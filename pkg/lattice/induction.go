// 文件: pkg/lattice/induction.go
// 终端收益 + 逆向归纳

package lattice

import "sync"

// Policy 行权策略: 第 step 步是否允许提前行权
type Policy interface {
	Eligible(step int) bool
}

// parallelMinWidth 层宽小于该值时不拆分，goroutine 调度开销比计算还大
const parallelMinWidth = 512

// Engine 逆向归纳引擎
// Workers <= 1 时单线程执行
type Engine struct {
	Workers int
}

// Terminal 对到期层逐点套用收益函数，返回价值格点 (只有第 N 层有值)
// 收益函数内部的 panic 原样向上传播
func Terminal(prices Tree, pay func(float64) float64) Tree {
	n := prices.Depth()
	values := newTree(n)
	last, leaf := prices[n], values[n]
	for j, s := range last {
		leaf[j] = pay(s)
	}
	return values
}

// Induct 从到期层向根节点逐层折现，返回根节点价值 V(0,0)
// values 需由 Terminal 初始化，归纳结束后整棵价值格点都被填满
//
//	cont(i,j) = disc · (p·V(i+1,j) + (1-p)·V(i+1,j+1))
//	V(i,j)    = cont                         不可行权
//	          = max(cont, payoff(S(i,j)))    可行权
func (e Engine) Induct(spec Spec, prices, values Tree, pay func(float64) float64, policy Policy) float64 {
	p, q, disc := spec.Prob, 1-spec.Prob, spec.Discount

	layer := func(i, lo, hi int, early bool) {
		next, cur, s := values[i+1], values[i], prices[i]
		for j := lo; j < hi; j++ {
			v := disc * (p*next[j] + q*next[j+1])
			if early {
				if x := pay(s[j]); x > v {
					v = x
				}
			}
			cur[j] = v
		}
	}

	for i := spec.Steps - 1; i >= 0; i-- {
		early := policy != nil && policy.Eligible(i)
		width := i + 1
		workers := e.Workers
		if workers <= 1 || width < parallelMinWidth {
			layer(i, 0, width, early)
			continue
		}

		// 同一层内节点互相独立，按区间切分; 每个节点只被一个 worker 写
		// Wait 是层间屏障: 第 i+1 层必须完整才能计算第 i 层
		if workers > width {
			workers = width
		}
		chunk := (width + workers - 1) / workers
		var (
			wg        sync.WaitGroup
			panicOnce sync.Once
			panicked  bool
			panicVal  any
		)
		for lo := 0; lo < width; lo += chunk {
			hi := min(lo+chunk, width)
			wg.Add(1)
			go func(lo, hi int) {
				defer wg.Done()
				// 收益函数的 panic 带回调用方 goroutine 再抛出
				defer func() {
					if r := recover(); r != nil {
						panicOnce.Do(func() { panicked, panicVal = true, r })
					}
				}()
				layer(i, lo, hi, early)
			}(lo, hi)
		}
		wg.Wait()
		if panicked {
			panic(panicVal)
		}
	}
	return values[0][0]
}
