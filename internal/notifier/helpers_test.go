package notifier

import logx "skeddy/pkg/logx"

func logxNop() logx.Logger { return logx.Nop() }
