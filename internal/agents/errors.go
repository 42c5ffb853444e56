package agents

import "errors"

// ErrScoreUnparseable indicates the review agent's reply contained no integer
// in [0,100]. The coordinator treats it as score 0 (forcing the revision
// branch) rather than failing the run.
var ErrScoreUnparseable = errors.New("agents: no accuracy score found in review")
